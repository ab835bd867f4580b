package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/handler/dto"
	"github.com/dha2608/MLN-AI/internal/service"
)

// QuizHandler обрабатывает запросы ежедневного квиза
type QuizHandler struct {
	gate   *service.QuizGate
	logger *zap.Logger
}

// NewQuizHandler создает новый обработчик квиза
func NewQuizHandler(gate *service.QuizGate, logger *zap.Logger) *QuizHandler {
	return &QuizHandler{gate: gate, logger: logger}
}

// GetStatus возвращает накопительный счёт и доступность попытки сегодня
func (h *QuizHandler) GetStatus(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}

	status, err := h.gate.Status(c.Request.Context(), participantID)
	if err != nil {
		respondError(c, h.logger, "quiz.status", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuizStatusResponse(status))
}

// Submit засчитывает попытку за сегодня
func (h *QuizHandler) Submit(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}

	var req dto.SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.gate.Submit(c.Request.Context(), participantID, *req.Score, req.Questions)
	if err != nil {
		respondError(c, h.logger, "quiz.submit", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.NewScoreRecordResponse(res.Record))
}
