package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// MatchRepo реализует repository.MatchRegistry
type MatchRepo struct {
	db *gorm.DB
}

// NewMatchRepo создает новый репозиторий матчей
func NewMatchRepo(db *gorm.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// CreateWithHost создаёт матч и строку хоста в одной транзакции.
// Partial unique index idx_matches_open_room_code гарантирует уникальность кода среди незавершённых матчей.
func (r *MatchRepo) CreateWithHost(ctx context.Context, match *entity.Match, host *entity.MatchParticipant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			return err
		}
		return tx.Create(host).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", repository.ErrRoomCodeTaken, match.RoomCode)
		}
		return wrapErr("create match", err)
	}
	return nil
}

// GetByID возвращает матч по ID
func (r *MatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Match, error) {
	var match entity.Match
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, wrapErr("get match", err)
	}
	return &match, nil
}

// GetOpenByRoomCode возвращает незавершённый матч по коду комнаты
func (r *MatchRepo) GetOpenByRoomCode(ctx context.Context, roomCode string) (*entity.Match, error) {
	var match entity.Match
	err := r.db.WithContext(ctx).
		Where("room_code = ? AND state <> ?", roomCode, entity.MatchStateFinished).
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, wrapErr("get match by room code", err)
	}
	return &match, nil
}

// Transition атомарно переводит матч from → to.
// - RowsAffected == 0 и матч существует → ErrStateConflict
// - матч не найден → ErrNotFound
// При переходе в finished строки участников закрываются в той же транзакции.
func (r *MatchRepo) Transition(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (*entity.Match, error) {
	if !entity.ValidMatchTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrStateConflict, from, to)
	}

	updates := map[string]interface{}{
		"state":      to,
		"updated_at": at,
	}
	switch to {
	case entity.MatchStatePlaying:
		updates["started_at"] = at
	case entity.MatchStateFinished:
		updates["finished_at"] = at
	}

	var match entity.Match
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := compareAndSetStateQuery(tx, id, from, updates)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var current entity.Match
			if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.ErrNotFound
				}
				return err
			}
			return fmt.Errorf("%w: match %s is %s, expected %s", repository.ErrStateConflict, id, current.State, from)
		}

		if to == entity.MatchStateFinished {
			err := tx.Model(&entity.MatchParticipant{}).
				Where("match_id = ?", id).
				Updates(map[string]interface{}{
					"status":     entity.ParticipantStatusFinished,
					"updated_at": at,
				}).Error
			if err != nil {
				return err
			}
		}

		return tx.Where("id = ?", id).First(&match).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, repository.ErrStateConflict) {
			return nil, err
		}
		return nil, wrapErr("transition match", err)
	}
	return &match, nil
}

// compareAndSetStateQuery меняет состояние, только если матч всё ещё в from
func compareAndSetStateQuery(tx *gorm.DB, id uuid.UUID, from string, updates map[string]interface{}) *gorm.DB {
	return tx.Model(&entity.Match{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
}

func lockMatchQuery(tx *gorm.DB, id uuid.UUID, dest *entity.Match) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		First(dest)
}

func participantUpdateQuery(tx *gorm.DB, matchID uuid.UUID, participantID string, updates map[string]interface{}) *gorm.DB {
	return tx.Model(&entity.MatchParticipant{}).
		Where("match_id = ? AND participant_id = ?", matchID, participantID).
		Updates(updates)
}

// lockMatch читает матч с блокировкой FOR SHARE: параллельные присоединения не мешают друг другу,
// но смена состояния (UPDATE) ждёт завершения транзакции.
func lockMatch(tx *gorm.DB, id uuid.UUID) (*entity.Match, error) {
	var match entity.Match
	err := lockMatchQuery(tx, id, &match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &match, nil
}

// AddParticipantIfWaiting добавляет участника, пока матч в waiting.
// Повторное присоединение возвращает существующую строку без изменений (ON CONFLICT DO NOTHING).
func (r *MatchRepo) AddParticipantIfWaiting(ctx context.Context, row *entity.MatchParticipant) (*entity.MatchParticipant, bool, error) {
	var stored entity.MatchParticipant
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := lockMatch(tx, row.MatchID)
		if err != nil {
			return err
		}

		if !match.IsWaiting() {
			return fmt.Errorf("%w: match %s is %s", repository.ErrMatchNotWaiting, match.ID, match.State)
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected == 1

		return tx.Where("match_id = ? AND participant_id = ?", row.MatchID, row.ParticipantID).First(&stored).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, repository.ErrMatchNotWaiting) {
			return nil, false, err
		}
		return nil, false, wrapErr("add participant", err)
	}
	return &stored, created, nil
}

// updateParticipantIfState обновляет строку участника при условии состояния матча
func (r *MatchRepo) updateParticipantIfState(ctx context.Context, op string, matchID uuid.UUID, participantID, requireState string, updates map[string]interface{}) (*entity.MatchParticipant, error) {
	var stored entity.MatchParticipant

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		if match.State != requireState {
			return fmt.Errorf("%w: match %s is %s, expected %s", repository.ErrStateConflict, match.ID, match.State, requireState)
		}

		result := participantUpdateQuery(tx, matchID, participantID, updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		return tx.Where("match_id = ? AND participant_id = ?", matchID, participantID).First(&stored).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, repository.ErrStateConflict) {
			return nil, err
		}
		return nil, wrapErr(op, err)
	}
	return &stored, nil
}

// SetParticipantStatus меняет статус участника
func (r *MatchRepo) SetParticipantStatus(ctx context.Context, matchID uuid.UUID, participantID, status, requireState string) (*entity.MatchParticipant, error) {
	return r.updateParticipantIfState(ctx, "set participant status", matchID, participantID, requireState, map[string]interface{}{
		"status":     status,
		"updated_at": gorm.Expr("now()"),
	})
}

// UpdateScore записывает счёт участника
func (r *MatchRepo) UpdateScore(ctx context.Context, matchID uuid.UUID, participantID string, score int64, requireState string) (*entity.MatchParticipant, error) {
	return r.updateParticipantIfState(ctx, "update score", matchID, participantID, requireState, map[string]interface{}{
		"score":      score,
		"updated_at": gorm.Expr("now()"),
	})
}

// GetParticipant возвращает строку участника
func (r *MatchRepo) GetParticipant(ctx context.Context, matchID uuid.UUID, participantID string) (*entity.MatchParticipant, error) {
	var row entity.MatchParticipant
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND participant_id = ?", matchID, participantID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, wrapErr("get participant", err)
	}
	return &row, nil
}

// ListParticipants возвращает участников матча в порядке присоединения
func (r *MatchRepo) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]entity.MatchParticipant, error) {
	var rows []entity.MatchParticipant
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("joined_at ASC, participant_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr("list participants", err)
	}
	return rows, nil
}

// ListStale возвращает матчи в состоянии state, начатые (или созданные) раньше before
func (r *MatchRepo) ListStale(ctx context.Context, state string, before time.Time, limit int) ([]entity.Match, error) {
	var matches []entity.Match
	err := r.db.WithContext(ctx).
		Where("state = ? AND COALESCE(started_at, created_at) < ?", state, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, wrapErr("list stale matches", err)
	}
	return matches, nil
}
