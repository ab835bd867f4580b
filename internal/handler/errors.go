package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/middleware"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
	"github.com/dha2608/MLN-AI/internal/service"
)

// ErrorResponse тело ответа при отказе или ошибке
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

var rejectionStatus = map[service.Rejection]int{
	service.RejectAlreadyAttemptedToday: http.StatusConflict,
	service.RejectRoomNotJoinable:       http.StatusConflict,
	service.RejectInvalidTransition:     http.StatusConflict,
	service.RejectNotHost:               http.StatusForbidden,
	service.RejectNotParticipant:        http.StatusForbidden,
	service.RejectNotFound:              http.StatusNotFound,
}

var rejectionMessage = map[service.Rejection]string{
	service.RejectAlreadyAttemptedToday: "Quiz already attempted today",
	service.RejectRoomNotJoinable:       "Room is not joinable",
	service.RejectInvalidTransition:     "Action is not allowed in the current match state",
	service.RejectNotHost:               "Only the host can perform this action",
	service.RejectNotParticipant:        "Not a participant of this match",
	service.RejectNotFound:              "Match not found",
}

// respondRejection отправляет ожидаемый бизнес-отказ
func respondRejection(c *gin.Context, reason service.Rejection) {
	status, ok := rejectionStatus[reason]
	if !ok {
		status = http.StatusConflict
	}
	message, ok := rejectionMessage[reason]
	if !ok {
		message = "Request rejected"
	}
	c.JSON(status, ErrorResponse{Error: message, Reason: string(reason)})
}

// respondError переводит ошибку сервиса в HTTP ответ.
// Тексты ошибок хранилища наружу не отдаются.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		logger.Warn("Storage unavailable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
	default:
		logger.Error("Internal server error", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

// respondBindError отвечает на невалидное тело запроса
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request data: " + err.Error()})
}

// participantOrAbort достает участника, установленного AuthMiddleware
func participantOrAbort(c *gin.Context) (string, bool) {
	participantID, ok := middleware.ParticipantID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return "", false
	}
	return participantID, true
}
