package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
)

const sweepBatchSize = 100

// MatchSweeper по расписанию завершает матчи, зависшие в playing дольше MaxPlayDuration.
// Матчи в waiting не трогает: пропуск состояния запрещён.
type MatchSweeper struct {
	coordinator     *MatchCoordinator
	registry        repository.MatchRegistry
	clock           *clock.Clock
	maxPlayDuration time.Duration
	schedule        string
	cron            *cron.Cron
	logger          *zap.Logger
}

// NewMatchSweeper создает планировщик очистки матчей
func NewMatchSweeper(
	coordinator *MatchCoordinator,
	registry repository.MatchRegistry,
	clk *clock.Clock,
	maxPlayDuration time.Duration,
	schedule string,
	logger *zap.Logger,
) *MatchSweeper {
	return &MatchSweeper{
		coordinator:     coordinator,
		registry:        registry,
		clock:           clk,
		maxPlayDuration: maxPlayDuration,
		schedule:        schedule,
		cron: cron.New(
			cron.WithLocation(clk.Location()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// Start регистрирует задачу и запускает планировщик
func (s *MatchSweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("[MatchSweeper] Ошибка очистки матчей", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("[MatchSweeper] Запущен",
		zap.String("schedule", s.schedule),
		zap.Duration("max_play_duration", s.maxPlayDuration),
	)
	return nil
}

// Stop останавливает планировщик; возвращённый контекст закрывается после завершения текущей задачи
func (s *MatchSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep завершает все зависшие матчи и возвращает их количество
func (s *MatchSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.maxPlayDuration)
	expired := 0

	for {
		stale, err := s.registry.ListStale(ctx, entity.MatchStatePlaying, cutoff, sweepBatchSize)
		if err != nil {
			return expired, fmt.Errorf("failed to list stale matches: %w", err)
		}

		progressed := false
		for _, m := range stale {
			ok, err := s.coordinator.Expire(ctx, m.ID)
			if err != nil {
				return expired, err
			}
			if ok {
				expired++
				progressed = true
			}
		}

		if len(stale) < sweepBatchSize || !progressed {
			break
		}
	}

	if expired > 0 {
		s.logger.Info("[MatchSweeper] Завершены зависшие матчи", zap.Int("count", expired))
	}
	return expired, nil
}
