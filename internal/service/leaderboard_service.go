package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

const leaderboardVersionKey = "leaderboard:version"

// LeaderboardEntry строка таблицы лидеров
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	ParticipantID   string `json:"participant_id"`
	CumulativeScore int64  `json:"cumulative_score"`
	DisplayName     string `json:"display_name"`
	AvatarURL       string `json:"avatar_url"`
}

// LeaderboardConfig параметры таблицы лидеров
type LeaderboardConfig struct {
	DefaultLimit  int
	MaxLimit      int
	BatchSize     int
	CacheTTL      time.Duration
	AnonymousName string
	QueryTimeout  time.Duration
}

// LeaderboardService read-only ранжированная проекция журнала счетов
type LeaderboardService struct {
	ledger    repository.ScoreLedger
	directory repository.Directory
	cache     repository.CacheRepository
	group     singleflight.Group
	config    LeaderboardConfig
	logger    *zap.Logger
}

// NewLeaderboardService создает сервис таблицы лидеров. cache может быть nil.
func NewLeaderboardService(
	ledger repository.ScoreLedger,
	directory repository.Directory,
	cache repository.CacheRepository,
	config LeaderboardConfig,
	logger *zap.Logger,
) *LeaderboardService {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 10
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = config.DefaultLimit
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &LeaderboardService{
		ledger:    ledger,
		directory: directory,
		cache:     cache,
		config:    config,
		logger:    logger,
	}
}

// ClampLimit приводит запрошенный размер к [1, MaxLimit]; n <= 0 означает размер по умолчанию
func (s *LeaderboardService) ClampLimit(n int) int {
	if n <= 0 {
		return s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		return s.config.MaxLimit
	}
	return n
}

// Top возвращает ленивую конечную последовательность первых n участников.
// Каждый range начинает чтение заново. Рейтинг читается одним запросом, поэтому
// попытка, засчитанная во время обхода, не дублирует и не пропускает участников.
// Имена подтягиваются из справочника пачками по BatchSize.
func (s *LeaderboardService) Top(ctx context.Context, n int) iter.Seq2[LeaderboardEntry, error] {
	n = s.ClampLimit(n)
	return func(yield func(LeaderboardEntry, error) bool) {
		var records []entity.ScoreRecord
		err := callWithTimeout(ctx, s.config.QueryTimeout, func(ctx context.Context) error {
			var err error
			records, err = s.ledger.Top(ctx, n)
			return err
		})
		if err != nil {
			yield(LeaderboardEntry{}, fmt.Errorf("failed to read leaderboard: %w", err))
			return
		}

		for offset := 0; offset < len(records); offset += s.config.BatchSize {
			batch := records[offset:min(offset+s.config.BatchSize, len(records))]
			profiles := s.lookupProfiles(ctx, batch)
			for i, rec := range batch {
				entry := LeaderboardEntry{
					Rank:            offset + i + 1,
					ParticipantID:   rec.ParticipantID,
					CumulativeScore: rec.CumulativeScore,
					DisplayName:     s.config.AnonymousName,
				}
				if p, ok := profiles[rec.ParticipantID]; ok {
					if p.Name != "" {
						entry.DisplayName = p.Name
					}
					entry.AvatarURL = p.AvatarURL
				}
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

func (s *LeaderboardService) lookupProfiles(ctx context.Context, records []entity.ScoreRecord) map[string]entity.Profile {
	if s.directory == nil {
		return nil
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ParticipantID
	}

	var profiles map[string]entity.Profile
	err := callWithTimeout(ctx, s.config.QueryTimeout, func(ctx context.Context) error {
		var err error
		profiles, err = s.directory.GetProfiles(ctx, ids)
		return err
	})
	if err != nil {
		s.logger.Warn("[LeaderboardService] Справочник профилей недоступен, используются анонимные имена", zap.Error(err))
		return nil
	}
	return profiles
}

// Collect материализует Top(n) в срез. Результат кешируется в Redis под ключом текущей версии;
// параллельные промахи кеша по одному ключу объединяются через singleflight.
func (s *LeaderboardService) Collect(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	n = s.ClampLimit(n)
	if s.cache == nil {
		return s.collect(ctx, n)
	}

	key := fmt.Sprintf("leaderboard:v%s:top:%d", s.version(ctx), n)

	var cached []LeaderboardEntry
	err := s.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("[LeaderboardService] Ошибка чтения кеша", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Общий запрос не должен прерываться отменой контекста первого вызывающего
		loadCtx := context.WithoutCancel(ctx)
		entries, err := s.collect(loadCtx, n)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetJSON(loadCtx, key, entries, s.config.CacheTTL); err != nil {
			s.logger.Warn("[LeaderboardService] Ошибка записи кеша", zap.String("key", key), zap.Error(err))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]LeaderboardEntry), nil
}

func (s *LeaderboardService) collect(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	entries := make([]LeaderboardEntry, 0, n)
	for entry, err := range s.Top(ctx, n) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *LeaderboardService) version(ctx context.Context) string {
	v, err := s.cache.Get(ctx, leaderboardVersionKey)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("[LeaderboardService] Не удалось прочитать версию кеша", zap.Error(err))
		}
		return "0"
	}
	return v
}

// Invalidate увеличивает версию кеша: старые ключи истекут по TTL
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Increment(ctx, leaderboardVersionKey); err != nil {
		s.logger.Warn("[LeaderboardService] Не удалось сбросить кеш", zap.Error(err))
	}
}
