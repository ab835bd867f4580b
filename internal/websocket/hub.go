package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// HubConfig настройки хаба событий матчей
type HubConfig struct {
	// Clustered: события идут через PubSubProvider, чтобы их видел каждый инстанс
	Clustered bool
	Channel   string
}

// Hub держит подписчиков, сгруппированных по матчу, и рассылает им события.
// Реализует service.MatchEventPublisher.
type Hub struct {
	provider PubSubProvider
	config   HubConfig
	logger   *zap.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*Client]struct{}
}

// NewHub создает хаб. provider может быть nil, тогда используется NoOpPubSub.
func NewHub(provider PubSubProvider, config HubConfig, logger *zap.Logger) *Hub {
	if provider == nil {
		provider = NoOpPubSub{}
	}
	if config.Channel == "" {
		config.Channel = "match-events"
	}
	return &Hub{
		provider:    provider,
		config:      config,
		logger:      logger,
		subscribers: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// PublishMatchEvent рассылает событие. В кластерном режиме событие уходит в канал
// провайдера и возвращается в этот же инстанс через Run.
func (h *Hub) PublishMatchEvent(ctx context.Context, event entity.MatchEvent) {
	if !h.config.Clustered {
		h.dispatch(event)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal match event", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.provider.Publish(publishCtx, h.config.Channel, payload); err != nil {
		// Остальные инстансы получат состояние при следующем событии или опросе
		h.logger.Warn("Failed to publish match event, delivering locally",
			zap.String("match_id", event.MatchID.String()),
			zap.String("kind", event.Kind),
			zap.Error(err))
		h.dispatch(event)
	}
}

// Run читает события из канала провайдера и раздает их локальным подписчикам.
// Блокируется до отмены ctx. В некластерном режиме просто ждет ctx.
func (h *Hub) Run(ctx context.Context) error {
	if !h.config.Clustered {
		<-ctx.Done()
		return nil
	}

	messages, err := h.provider.Subscribe(ctx, h.config.Channel)
	if err != nil {
		return err
	}

	for payload := range messages {
		var event entity.MatchEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			h.logger.Warn("Dropping malformed match event", zap.Error(err))
			continue
		}
		h.dispatch(event)
	}
	return nil
}

// Register добавляет клиента в число подписчиков его матча
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.subscribers[c.MatchID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.subscribers[c.MatchID] = clients
	}
	clients[c] = struct{}{}
}

// Unregister удаляет клиента. Повторный вызов безопасен.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.subscribers[c.MatchID]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.subscribers, c.MatchID)
	}
}

// SubscriberCount возвращает число подписчиков матча
func (h *Hub) SubscriberCount(matchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[matchID])
}

func (h *Hub) dispatch(event entity.MatchEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subscribers[event.MatchID] {
		c.notify(event)
	}
}
