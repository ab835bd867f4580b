package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/service"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Лента только пишет клиенту, входящие сообщения игнорируются
	maxMessageSize = 512

	defaultClientBufferSize = 16

	defaultSnapshotTimeout = 3 * time.Second
)

// Типы исходящих сообщений
const (
	MessageTypeMatchState = "match_state"
	MessageTypeMatchError = "match_error"
)

// Message сообщение ленты матча
type Message struct {
	Type   string                 `json:"type"`
	Event  string                 `json:"event,omitempty"`
	Data   *service.MatchSnapshot `json:"data,omitempty"`
	Reason string                 `json:"reason,omitempty"`
}

// SnapshotSource отдает актуальный снимок матча
type SnapshotSource interface {
	GetState(ctx context.Context, matchID uuid.UUID) (service.SnapshotResult, error)
}

// ClientConfig содержит настройки для клиента
type ClientConfig struct {
	// BufferSize размер очереди необработанных событий
	BufferSize      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	SnapshotTimeout time.Duration
}

// DefaultClientConfig возвращает конфигурацию клиента по умолчанию
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BufferSize:      defaultClientBufferSize,
		PingInterval:    pingPeriod,
		PongWait:        pongWait,
		WriteWait:       writeWait,
		MaxMessageSize:  maxMessageSize,
		SnapshotTimeout: defaultSnapshotTimeout,
	}
}

// Client подписчик ленты одного матча поверх WebSocket соединения
type Client struct {
	// Уникальный ID для каждого соединения
	ConnectionID  string
	ParticipantID string
	MatchID       uuid.UUID

	hub    *Hub
	conn   *websocket.Conn
	source SnapshotSource
	config ClientConfig
	logger *zap.Logger

	// Очередь событий. Переполнение не страшно: уже ожидающее событие
	// перечитает снимок после текущего изменения.
	events    chan entity.MatchEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient создает нового клиента
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	source SnapshotSource,
	participantID string,
	matchID uuid.UUID,
	config ClientConfig,
	logger *zap.Logger,
) *Client {
	defaults := DefaultClientConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.SnapshotTimeout <= 0 {
		config.SnapshotTimeout = defaults.SnapshotTimeout
	}

	connectionID := uuid.New().String()
	return &Client{
		ConnectionID:  connectionID,
		ParticipantID: participantID,
		MatchID:       matchID,
		hub:           hub,
		conn:          conn,
		source:        source,
		config:        config,
		logger: logger.With(
			zap.String("connection_id", connectionID),
			zap.String("participant_id", participantID),
			zap.String("match_id", matchID.String()),
		),
		events: make(chan entity.MatchEvent, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Start регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) Start() {
	c.hub.Register(c)
	c.logger.Debug("WebSocket client registered")

	go c.writePump()
	go c.readPump()
}

func (c *Client) notify(event entity.MatchEvent) {
	select {
	case c.events <- event:
	case <-c.done:
	default:
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger.Debug("WebSocket client closed")
	})
}

// readPump нужен только для ping/pong и обнаружения закрытия соединения
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Info("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump отправляет снимок при подключении и после каждого события матча
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	if !c.pushSnapshot("") {
		return
	}

	for {
		select {
		case event := <-c.events:
			if !c.pushSnapshot(event.Kind) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// pushSnapshot перечитывает матч и отправляет снимок. Возвращает false,
// если соединение нужно закрыть: ошибка записи, матч не найден или завершён.
func (c *Client) pushSnapshot(kind string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.SnapshotTimeout)
	res, err := c.source.GetState(ctx, c.MatchID)
	cancel()
	if err != nil {
		// Клиент получит состояние со следующим событием или через опрос
		c.logger.Warn("Failed to read match snapshot for feed", zap.Error(err))
		return true
	}

	if !res.Accepted() {
		c.write(Message{Type: MessageTypeMatchError, Reason: string(res.Rejection)})
		c.closeNormally()
		return false
	}

	if !c.write(Message{Type: MessageTypeMatchState, Event: kind, Data: res.Snapshot}) {
		return false
	}

	if res.Snapshot.Match.IsFinished() {
		c.closeNormally()
		return false
	}
	return true
}

func (c *Client) write(msg Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal feed message", zap.Error(err))
		return false
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug("WebSocket write error", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) closeNormally() {
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match closed"))
}
