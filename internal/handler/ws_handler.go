package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/service"
	"github.com/dha2608/MLN-AI/internal/websocket"
)

// WSHandler подключает клиентов к ленте событий матча
type WSHandler struct {
	hub          *websocket.Hub
	coordinator  *service.MatchCoordinator
	clientConfig websocket.ClientConfig
	upgrader     gorillaws.Upgrader
	logger       *zap.Logger
}

// NewWSHandler создает обработчик WebSocket. allowedOrigins синхронизирован с CORS.
func NewWSHandler(
	hub *websocket.Hub,
	coordinator *service.MatchCoordinator,
	clientConfig websocket.ClientConfig,
	allowedOrigins []string,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		hub:          hub,
		coordinator:  coordinator,
		clientConfig: clientConfig,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// originChecker разрешает запросы без Origin (мобильные клиенты, curl)
// и браузерные запросы только с перечисленных доменов
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

// HandleMatchFeed обновляет соединение до WebSocket и подписывает его на события матча
func (h *WSHandler) HandleMatchFeed(c *gin.Context) {
	participantID, ok := participantOrAbort(c)
	if !ok {
		return
	}
	matchID := c.MustGet(MatchIDKey).(uuid.UUID)

	// Неизвестный матч отклоняем до upgrade, чтобы клиент получил обычный HTTP ответ
	res, err := h.coordinator.GetState(c.Request.Context(), matchID)
	if err != nil {
		respondError(c, h.logger, "match.feed", err)
		return
	}
	if !res.Accepted() {
		respondRejection(c, res.Rejection)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		h.logger.Info("WebSocket upgrade failed", zap.String("participant_id", participantID), zap.Error(err))
		return
	}

	websocket.NewClient(h.hub, conn, h.coordinator, participantID, matchID, h.clientConfig, h.logger).Start()
}
