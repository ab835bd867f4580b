package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

type participantKey struct {
	matchID       uuid.UUID
	participantID string
}

// MatchRegistry реализует repository.MatchRegistry в памяти.
// openCodes повторяет partial unique index: код занят, пока матч не завершён.
type MatchRegistry struct {
	mu           sync.Mutex
	matches      map[uuid.UUID]*entity.Match
	openCodes    map[string]uuid.UUID
	participants map[participantKey]*entity.MatchParticipant
	now          func() time.Time
}

// NewMatchRegistry создает пустой реестр матчей
func NewMatchRegistry() *MatchRegistry {
	return &MatchRegistry{
		matches:      make(map[uuid.UUID]*entity.Match),
		openCodes:    make(map[string]uuid.UUID),
		participants: make(map[participantKey]*entity.MatchParticipant),
		now:          time.Now,
	}
}

func copyMatch(m *entity.Match) *entity.Match {
	out := *m
	return &out
}

func copyParticipant(p *entity.MatchParticipant) *entity.MatchParticipant {
	out := *p
	return &out
}

// CreateWithHost создаёт матч и строку хоста атомарно
func (r *MatchRegistry) CreateWithHost(ctx context.Context, match *entity.Match, host *entity.MatchParticipant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.openCodes[match.RoomCode]; taken {
		return fmt.Errorf("%w: %s", repository.ErrRoomCodeTaken, match.RoomCode)
	}
	if _, exists := r.matches[match.ID]; exists {
		return fmt.Errorf("%w: duplicate match id %s", apperrors.ErrInvariantViolated, match.ID)
	}

	now := r.now()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now
	if host.JoinedAt.IsZero() {
		host.JoinedAt = now
	}
	host.UpdatedAt = now

	r.matches[match.ID] = copyMatch(match)
	r.openCodes[match.RoomCode] = match.ID
	r.participants[participantKey{match.ID, host.ParticipantID}] = copyParticipant(host)
	return nil
}

// GetByID возвращает матч по ID
func (r *MatchRegistry) GetByID(ctx context.Context, id uuid.UUID) (*entity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyMatch(m), nil
}

// GetOpenByRoomCode возвращает незавершённый матч по коду
func (r *MatchRegistry) GetOpenByRoomCode(ctx context.Context, roomCode string) (*entity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.openCodes[roomCode]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyMatch(r.matches[id]), nil
}

// Transition выполняет compare-and-set состояния матча
func (r *MatchRegistry) Transition(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (*entity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !entity.ValidMatchTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrStateConflict, from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if m.State != from {
		return nil, fmt.Errorf("%w: match %s is %s, expected %s", repository.ErrStateConflict, id, m.State, from)
	}

	m.State = to
	m.UpdatedAt = at
	switch to {
	case entity.MatchStatePlaying:
		started := at
		m.StartedAt = &started
	case entity.MatchStateFinished:
		finished := at
		m.FinishedAt = &finished
		delete(r.openCodes, m.RoomCode)
		for key, p := range r.participants {
			if key.matchID == id {
				p.Status = entity.ParticipantStatusFinished
				p.UpdatedAt = at
			}
		}
	}
	return copyMatch(m), nil
}

// AddParticipantIfWaiting добавляет участника, пока матч в waiting
func (r *MatchRegistry) AddParticipantIfWaiting(ctx context.Context, row *entity.MatchParticipant) (*entity.MatchParticipant, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[row.MatchID]
	if !ok {
		return nil, false, apperrors.ErrNotFound
	}

	if !m.IsWaiting() {
		return nil, false, fmt.Errorf("%w: match %s is %s", repository.ErrMatchNotWaiting, m.ID, m.State)
	}
	key := participantKey{row.MatchID, row.ParticipantID}
	if existing, ok := r.participants[key]; ok {
		return copyParticipant(existing), false, nil
	}

	now := r.now()
	stored := copyParticipant(row)
	if stored.JoinedAt.IsZero() {
		stored.JoinedAt = now
	}
	stored.UpdatedAt = now
	r.participants[key] = stored
	return copyParticipant(stored), true, nil
}

func (r *MatchRegistry) updateParticipant(matchID uuid.UUID, participantID, requireState string, apply func(*entity.MatchParticipant)) (*entity.MatchParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if m.State != requireState {
		return nil, fmt.Errorf("%w: match %s is %s, expected %s", repository.ErrStateConflict, m.ID, m.State, requireState)
	}
	p, ok := r.participants[participantKey{matchID, participantID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	apply(p)
	p.UpdatedAt = r.now()
	return copyParticipant(p), nil
}

// SetParticipantStatus меняет статус участника
func (r *MatchRegistry) SetParticipantStatus(ctx context.Context, matchID uuid.UUID, participantID, status, requireState string) (*entity.MatchParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.updateParticipant(matchID, participantID, requireState, func(p *entity.MatchParticipant) {
		p.Status = status
	})
}

// UpdateScore записывает счёт участника
func (r *MatchRegistry) UpdateScore(ctx context.Context, matchID uuid.UUID, participantID string, score int64, requireState string) (*entity.MatchParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.updateParticipant(matchID, participantID, requireState, func(p *entity.MatchParticipant) {
		p.Score = score
	})
}

// GetParticipant возвращает строку участника
func (r *MatchRegistry) GetParticipant(ctx context.Context, matchID uuid.UUID, participantID string) (*entity.MatchParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantKey{matchID, participantID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyParticipant(p), nil
}

// ListParticipants возвращает участников в порядке присоединения
func (r *MatchRegistry) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]entity.MatchParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	rows := make([]entity.MatchParticipant, 0)
	for key, p := range r.participants {
		if key.matchID == matchID {
			rows = append(rows, *p)
		}
	}
	r.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].JoinedAt.Equal(rows[j].JoinedAt) {
			return rows[i].JoinedAt.Before(rows[j].JoinedAt)
		}
		return rows[i].ParticipantID < rows[j].ParticipantID
	})
	return rows, nil
}

// ListStale возвращает матчи в состоянии state, начатые (или созданные) раньше before
func (r *MatchRegistry) ListStale(ctx context.Context, state string, before time.Time, limit int) ([]entity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	stale := make([]entity.Match, 0)
	for _, m := range r.matches {
		if m.State != state {
			continue
		}
		since := m.CreatedAt
		if m.StartedAt != nil {
			since = *m.StartedAt
		}
		if since.Before(before) {
			stale = append(stale, *m)
		}
	}
	r.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
