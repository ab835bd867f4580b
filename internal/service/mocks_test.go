package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// ============================================================================
// Моки репозиториев
// ============================================================================

// MockScoreLedger реализует repository.ScoreLedger
type MockScoreLedger struct {
	mock.Mock
}

func (m *MockScoreLedger) Get(ctx context.Context, participantID string) (*entity.ScoreRecord, error) {
	args := m.Called(ctx, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ScoreRecord), args.Error(1)
}

func (m *MockScoreLedger) CommitAttempt(ctx context.Context, participantID string, scoreDelta, questions int64, on datatypes.Date) (*entity.ScoreRecord, bool, error) {
	args := m.Called(ctx, participantID, scoreDelta, questions, on)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.ScoreRecord), args.Bool(1), args.Error(2)
}

func (m *MockScoreLedger) Top(ctx context.Context, limit int) ([]entity.ScoreRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ScoreRecord), args.Error(1)
}

// MockMatchRegistry реализует repository.MatchRegistry
type MockMatchRegistry struct {
	mock.Mock
}

func (m *MockMatchRegistry) CreateWithHost(ctx context.Context, match *entity.Match, host *entity.MatchParticipant) error {
	args := m.Called(ctx, match, host)
	return args.Error(0)
}

func (m *MockMatchRegistry) GetByID(ctx context.Context, id uuid.UUID) (*entity.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Match), args.Error(1)
}

func (m *MockMatchRegistry) GetOpenByRoomCode(ctx context.Context, roomCode string) (*entity.Match, error) {
	args := m.Called(ctx, roomCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Match), args.Error(1)
}

func (m *MockMatchRegistry) Transition(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (*entity.Match, error) {
	args := m.Called(ctx, id, from, to, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Match), args.Error(1)
}

func (m *MockMatchRegistry) AddParticipantIfWaiting(ctx context.Context, row *entity.MatchParticipant) (*entity.MatchParticipant, bool, error) {
	args := m.Called(ctx, row)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.MatchParticipant), args.Bool(1), args.Error(2)
}

func (m *MockMatchRegistry) SetParticipantStatus(ctx context.Context, matchID uuid.UUID, participantID, status, requireState string) (*entity.MatchParticipant, error) {
	args := m.Called(ctx, matchID, participantID, status, requireState)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MatchParticipant), args.Error(1)
}

func (m *MockMatchRegistry) UpdateScore(ctx context.Context, matchID uuid.UUID, participantID string, score int64, requireState string) (*entity.MatchParticipant, error) {
	args := m.Called(ctx, matchID, participantID, score, requireState)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MatchParticipant), args.Error(1)
}

func (m *MockMatchRegistry) GetParticipant(ctx context.Context, matchID uuid.UUID, participantID string) (*entity.MatchParticipant, error) {
	args := m.Called(ctx, matchID, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MatchParticipant), args.Error(1)
}

func (m *MockMatchRegistry) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]entity.MatchParticipant, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.MatchParticipant), args.Error(1)
}

func (m *MockMatchRegistry) ListStale(ctx context.Context, state string, before time.Time, limit int) ([]entity.Match, error) {
	args := m.Called(ctx, state, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Match), args.Error(1)
}

// MockCacheRepository реализует repository.CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepository) Increment(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

// MockDirectory реализует repository.Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetProfiles(ctx context.Context, ids []string) (map[string]entity.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]entity.Profile), args.Error(1)
}

// MockInvalidator реализует LeaderboardInvalidator
type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context) {
	m.Called(ctx)
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.MatchEvent
}

func (p *recordingPublisher) PublishMatchEvent(_ context.Context, event entity.MatchEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}
