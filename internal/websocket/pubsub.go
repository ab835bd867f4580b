package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PubSubProvider транспорт для рассылки событий между инстансами
type PubSubProvider interface {
	// Publish публикует сообщение в указанный канал
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe подписывается на канал. Канал сообщений закрывается,
	// когда ctx отменён или провайдер закрыт.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close закрывает провайдер и все подписки
	Close() error
}

// NoOpPubSub провайдер-заглушка для одиночного инстанса.
// События доставляются только внутри процесса.
type NoOpPubSub struct{}

// Publish ничего не делает
func (NoOpPubSub) Publish(context.Context, string, []byte) error { return nil }

// Subscribe возвращает канал, который закрывается вместе с ctx
func (NoOpPubSub) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Close ничего не делает
func (NoOpPubSub) Close() error { return nil }

// RedisPubSub реализует PubSubProvider поверх Redis Pub/Sub
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu            sync.Mutex
	subscriptions map[*redis.PubSub]struct{}
}

// NewRedisPubSub создает провайдер, используя существующий UniversalClient.
// Клиент принадлежит вызывающей стороне и провайдером не закрывается.
func NewRedisPubSub(client redis.UniversalClient, logger *zap.Logger) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}

	// Проверяем соединение клиента перед использованием
	ctx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCheck()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("provided redis client failed ping check: %w", err)
	}

	ctxPubSub, cancelPubSub := context.WithCancel(context.Background())
	return &RedisPubSub{
		client:        client,
		ctx:           ctxPubSub,
		cancel:        cancelPubSub,
		logger:        logger,
		subscriptions: make(map[*redis.PubSub]struct{}),
	}, nil
}

// Publish публикует сообщение в указанный канал
func (p *RedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на канал Redis
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(p.ctx, channel)

	// Ждем подтверждения подписки
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	p.mu.Lock()
	p.subscriptions[pubsub] = struct{}{}
	p.mu.Unlock()

	p.logger.Info("Subscribed to Redis channel", zap.String("channel", channel))

	msgCh := make(chan []byte, 100)
	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.subscriptions, pubsub)
			p.mu.Unlock()
			pubsub.Close()
			close(msgCh)
		}()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					p.logger.Warn("Redis channel closed by server", zap.String("channel", channel))
					return
				}
				select {
				case msgCh <- []byte(msg.Payload):
				case <-p.ctx.Done():
					return
				case <-ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgCh, nil
}

// Close закрывает все активные подписки
func (p *RedisPubSub) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for pubsub := range p.subscriptions {
		if err := pubsub.Close(); err != nil {
			p.logger.Warn("Error closing Redis subscription", zap.Error(err))
			lastErr = err
		}
		delete(p.subscriptions, pubsub)
	}
	return lastErr
}
