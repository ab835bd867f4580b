package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// =============================================================================
// Вспомогательные типы
// =============================================================================

// loopbackPubSub возвращает опубликованные сообщения всем подписчикам внутри процесса
type loopbackPubSub struct {
	mu         sync.Mutex
	subs       []chan []byte
	published  [][]byte
	publishErr error
}

func (p *loopbackPubSub) Publish(_ context.Context, _ string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, message)
	for _, ch := range p.subs {
		ch <- message
	}
	return nil
}

func (p *loopbackPubSub) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subs {
			if sub == ch {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (p *loopbackPubSub) Close() error { return nil }

func (p *loopbackPubSub) subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs) > 0
}

// bareClient клиент без соединения: достаточно для проверки маршрутизации хаба
func bareClient(matchID uuid.UUID) *Client {
	return &Client{
		MatchID: matchID,
		events:  make(chan entity.MatchEvent, 4),
		done:    make(chan struct{}),
	}
}

func receiveEvent(t *testing.T, c *Client) entity.MatchEvent {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
		return entity.MatchEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.events:
		t.Fatalf("неожиданное событие: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// =============================================================================
// Локальная доставка
// =============================================================================

func TestHub_LocalDispatchByMatch(t *testing.T) {
	// Arrange
	hub := NewHub(nil, HubConfig{}, zap.NewNop())
	matchA, matchB := uuid.New(), uuid.New()
	subA := bareClient(matchA)
	subB := bareClient(matchB)
	hub.Register(subA)
	hub.Register(subB)

	// Act
	hub.PublishMatchEvent(context.Background(), entity.MatchEvent{MatchID: matchA, Kind: entity.MatchEventJoined, ParticipantID: "p2"})

	// Assert
	ev := receiveEvent(t, subA)
	assert.Equal(t, entity.MatchEventJoined, ev.Kind)
	assert.Equal(t, "p2", ev.ParticipantID)
	assertNoEvent(t, subB)
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(nil, HubConfig{}, zap.NewNop())
	matchID := uuid.New()
	sub := bareClient(matchID)
	hub.Register(sub)
	require.Equal(t, 1, hub.SubscriberCount(matchID))

	hub.Unregister(sub)
	hub.Unregister(sub) // повторный вызов безопасен

	assert.Equal(t, 0, hub.SubscriberCount(matchID))
	hub.PublishMatchEvent(context.Background(), entity.MatchEvent{MatchID: matchID, Kind: entity.MatchEventStarted})
	assertNoEvent(t, sub)
}

func TestHub_FullQueueDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub(nil, HubConfig{}, zap.NewNop())
	matchID := uuid.New()
	sub := bareClient(matchID)
	hub.Register(sub)

	// Очередь на 4 события, публикуем больше: издатель не должен блокироваться
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.PublishMatchEvent(context.Background(), entity.MatchEvent{MatchID: matchID, Kind: entity.MatchEventScore})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("публикация заблокировалась на переполненной очереди")
	}
	assert.Len(t, sub.events, 4)
}

// =============================================================================
// Кластерный режим
// =============================================================================

func TestHub_ClusteredRoundTrip(t *testing.T) {
	// Arrange
	provider := &loopbackPubSub{}
	hub := NewHub(provider, HubConfig{Clustered: true, Channel: "match-events"}, zap.NewNop())
	matchID := uuid.New()
	sub := bareClient(matchID)
	hub.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- hub.Run(ctx) }()
	require.Eventually(t, provider.subscribed, time.Second, 5*time.Millisecond)

	// Act
	hub.PublishMatchEvent(context.Background(), entity.MatchEvent{MatchID: matchID, Kind: entity.MatchEventFinished})

	// Assert: событие прошло через провайдер и вернулось подписчику
	ev := receiveEvent(t, sub)
	assert.Equal(t, entity.MatchEventFinished, ev.Kind)
	assert.Equal(t, matchID, ev.MatchID)
	assert.Len(t, provider.published, 1)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestHub_ClusteredPublishFailureFallsBackToLocal(t *testing.T) {
	provider := &loopbackPubSub{publishErr: errors.New("redis down")}
	hub := NewHub(provider, HubConfig{Clustered: true}, zap.NewNop())
	matchID := uuid.New()
	sub := bareClient(matchID)
	hub.Register(sub)

	hub.PublishMatchEvent(context.Background(), entity.MatchEvent{MatchID: matchID, Kind: entity.MatchEventReady})

	ev := receiveEvent(t, sub)
	assert.Equal(t, entity.MatchEventReady, ev.Kind)
}

func TestHub_RunSkipsMalformedPayload(t *testing.T) {
	provider := &loopbackPubSub{}
	hub := NewHub(provider, HubConfig{Clustered: true}, zap.NewNop())
	matchID := uuid.New()
	sub := bareClient(matchID)
	hub.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	require.Eventually(t, provider.subscribed, time.Second, 5*time.Millisecond)

	require.NoError(t, provider.Publish(ctx, "match-events", []byte("{not json")))
	hub.PublishMatchEvent(ctx, entity.MatchEvent{MatchID: matchID, Kind: entity.MatchEventStarted})

	ev := receiveEvent(t, sub)
	assert.Equal(t, entity.MatchEventStarted, ev.Kind)
}

func TestNoOpPubSub_SubscribeClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NoOpPubSub{}.Subscribe(ctx, "match-events")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("канал не закрылся")
	}
}
