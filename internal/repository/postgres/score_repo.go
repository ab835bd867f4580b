package postgres

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// ScoreRepo реализует repository.ScoreLedger
type ScoreRepo struct {
	db *gorm.DB
}

// NewScoreRepo создает новый репозиторий накопительных счетов
func NewScoreRepo(db *gorm.DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

// Get возвращает запись участника
func (r *ScoreRepo) Get(ctx context.Context, participantID string) (*entity.ScoreRecord, error) {
	var rec entity.ScoreRecord
	err := r.db.WithContext(ctx).Where("participant_id = ?", participantID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, wrapErr("get score record", err)
	}
	return &rec, nil
}

// CommitAttempt засчитывает попытку одним оператором:
//
//	INSERT ... ON CONFLICT (participant_id) DO UPDATE SET ...
//	WHERE score_records.last_attempt_date IS DISTINCT FROM EXCLUDED.last_attempt_date
//	RETURNING *
//
// Конкурентные вставки сериализуются блокировкой строки в Postgres:
// вторая попытка за тот же день видит обновлённую строку, условие WHERE ложно, строк не возвращается.
func (r *ScoreRepo) CommitAttempt(ctx context.Context, participantID string, scoreDelta, questions int64, on datatypes.Date) (*entity.ScoreRecord, bool, error) {
	day := on
	rec := entity.ScoreRecord{
		ParticipantID:   participantID,
		CumulativeScore: scoreDelta,
		LastAttemptDate: &day,
		TotalQuestions:  questions,
	}

	result := commitAttemptQuery(r.db.WithContext(ctx), &rec)
	if result.Error != nil {
		return nil, false, wrapErr("commit attempt", result.Error)
	}

	if result.RowsAffected == 0 {
		// Попытка за этот день уже есть: возвращаем текущее состояние без изменений
		current, err := r.Get(ctx, participantID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	return &rec, true, nil
}

// commitAttemptQuery условный upsert попытки: обновление только если день попытки сменился
func commitAttemptQuery(tx *gorm.DB, rec *entity.ScoreRecord) *gorm.DB {
	return tx.Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "participant_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"cumulative_score":  gorm.Expr("score_records.cumulative_score + EXCLUDED.cumulative_score"),
				"last_attempt_date": gorm.Expr("EXCLUDED.last_attempt_date"),
				"total_questions":   gorm.Expr("score_records.total_questions + EXCLUDED.total_questions"),
				"updated_at":        gorm.Expr("EXCLUDED.updated_at"),
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("score_records.last_attempt_date IS DISTINCT FROM EXCLUDED.last_attempt_date"),
			}},
		},
		clause.Returning{},
	).Create(rec)
}

// topQuery стабильный порядок рейтинга: при равном счёте по participant_id
func topQuery(tx *gorm.DB, limit int, dest *[]entity.ScoreRecord) *gorm.DB {
	return tx.Order("cumulative_score DESC, participant_id ASC").
		Limit(limit).
		Find(dest)
}

// Top возвращает первые limit записей таблицы лидеров одним запросом
func (r *ScoreRepo) Top(ctx context.Context, limit int) ([]entity.ScoreRecord, error) {
	var records []entity.ScoreRecord
	err := topQuery(r.db.WithContext(ctx), limit, &records).Error
	if err != nil {
		return nil, wrapErr("top score records", err)
	}
	return records, nil
}
