package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// MatchRegistry хранит матчи и участников.
// Все переходы состояния выполняются как compare-and-set на уровне хранилища.
type MatchRegistry interface {
	// CreateWithHost в одной транзакции создаёт матч и строку хоста.
	// Занятый room_code среди незавершённых матчей → ErrRoomCodeTaken.
	CreateWithHost(ctx context.Context, match *entity.Match, host *entity.MatchParticipant) error

	GetByID(ctx context.Context, id uuid.UUID) (*entity.Match, error)

	// GetOpenByRoomCode ищет незавершённый матч по коду комнаты
	GetOpenByRoomCode(ctx context.Context, roomCode string) (*entity.Match, error)

	// Transition переводит матч from → to. Если текущее состояние не from → ErrStateConflict.
	// При переходе в finished все строки участников получают статус finished.
	Transition(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (*entity.Match, error)

	// AddParticipantIfWaiting добавляет участника, только пока матч в waiting (иначе ErrMatchNotWaiting).
	// Существующая строка возвращается без изменений, created = false.
	AddParticipantIfWaiting(ctx context.Context, row *entity.MatchParticipant) (*entity.MatchParticipant, bool, error)

	// SetParticipantStatus меняет статус участника при условии, что матч в состоянии requireState
	SetParticipantStatus(ctx context.Context, matchID uuid.UUID, participantID, status, requireState string) (*entity.MatchParticipant, error)

	// UpdateScore записывает счёт участника (last-write-wins) при условии, что матч в состоянии requireState
	UpdateScore(ctx context.Context, matchID uuid.UUID, participantID string, score int64, requireState string) (*entity.MatchParticipant, error)

	GetParticipant(ctx context.Context, matchID uuid.UUID, participantID string) (*entity.MatchParticipant, error)

	// ListParticipants возвращает участников в порядке присоединения
	ListParticipants(ctx context.Context, matchID uuid.UUID) ([]entity.MatchParticipant, error)

	// ListStale возвращает матчи в состоянии state, начатые (или созданные, если не начаты) раньше before
	ListStale(ctx context.Context, state string, before time.Time, limit int) ([]entity.Match, error)
}
