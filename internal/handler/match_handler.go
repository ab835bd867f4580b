package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/handler/dto"
	"github.com/dha2608/MLN-AI/internal/service"
)

// MatchIDKey ключ контекста gin с ID матча из URL
const MatchIDKey = "matchID"

// MatchHandler обрабатывает запросы мультиплеерных матчей
type MatchHandler struct {
	coordinator *service.MatchCoordinator
	logger      *zap.Logger
}

// NewMatchHandler создает новый обработчик матчей
func NewMatchHandler(coordinator *service.MatchCoordinator, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{coordinator: coordinator, logger: logger}
}

// Create создает матч, аутентифицированный участник становится хостом
func (h *MatchHandler) Create(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}

	var req dto.CreateMatchRequest
	// Тело необязательно: пустой запрос создает pvp матч
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	match, host, err := h.coordinator.Create(c.Request.Context(), participantID, req.Mode)
	if err != nil {
		respondError(c, h.logger, "match.create", err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateMatchResponse{
		Match: dto.NewMatchResponse(match),
		Host:  dto.NewParticipantResponse(host),
	})
}

// Join присоединяет участника к ожидающему матчу по коду комнаты
func (h *MatchHandler) Join(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}

	var req dto.JoinMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.coordinator.Join(c.Request.Context(), req.RoomCode, participantID)
	if err != nil {
		respondError(c, h.logger, "match.join", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.JoinMatchResponse{
		Match:       dto.NewMatchResponse(res.Match),
		Participant: dto.NewParticipantResponse(res.Participant),
		Rejoined:    res.Rejoined,
	})
}

// GetState возвращает согласованный снимок матча
func (h *MatchHandler) GetState(c *gin.Context) {
	if _, ok := participantOrAbort(c); !ok {
		return
	}
	matchID := c.MustGet(MatchIDKey).(uuid.UUID)

	res, err := h.coordinator.GetState(c.Request.Context(), matchID)
	if err != nil {
		respondError(c, h.logger, "match.get_state", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.NewMatchSnapshotResponse(res.Snapshot))
}

// Start переводит матч в playing. Доступно только хосту.
func (h *MatchHandler) Start(c *gin.Context) {
	h.transition(c, "match.start", h.coordinator.Start)
}

// Finish завершает матч и освобождает код комнаты. Доступно только хосту.
func (h *MatchHandler) Finish(c *gin.Context) {
	h.transition(c, "match.finish", h.coordinator.Finish)
}

func (h *MatchHandler) transition(
	c *gin.Context,
	op string,
	fn func(ctx context.Context, matchID uuid.UUID, requesterID string) (service.MatchResult, error),
) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}
	matchID := c.MustGet(MatchIDKey).(uuid.UUID)

	res, err := fn(c.Request.Context(), matchID, participantID)
	if err != nil {
		respondError(c, h.logger, op, err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.NewMatchResponse(res.Match))
}

// Ready отмечает участника готовым к игре
func (h *MatchHandler) Ready(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}
	matchID := c.MustGet(MatchIDKey).(uuid.UUID)

	res, err := h.coordinator.Ready(c.Request.Context(), matchID, participantID)
	if err != nil {
		respondError(c, h.logger, "match.ready", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.NewParticipantResponse(res.Participant))
}

// ReportScore записывает текущий счёт участника в идущем матче
func (h *MatchHandler) ReportScore(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}

	var req dto.ReportScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.coordinator.ReportScore(c.Request.Context(), req.MatchID, participantID, participantID, *req.Score)
	if err != nil {
		respondError(c, h.logger, "match.report_score", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	c.JSON(http.StatusOK, dto.NewParticipantResponse(res.Participant))
}
