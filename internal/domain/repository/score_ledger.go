package repository

import (
	"context"

	"gorm.io/datatypes"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// ScoreLedger хранит накопительные счета участников ежедневного квиза.
// Реализация обязана быть линеаризуемой по participant_id на уровне хранилища.
type ScoreLedger interface {
	// Get возвращает запись участника или apperrors.ErrNotFound
	Get(ctx context.Context, participantID string) (*entity.ScoreRecord, error)

	// CommitAttempt атомарно засчитывает попытку за день on.
	// Если попытка за этот день уже засчитана, возвращает (текущая запись, false) без изменений.
	CommitAttempt(ctx context.Context, participantID string, scoreDelta, questions int64, on datatypes.Date) (*entity.ScoreRecord, bool, error)

	// Top возвращает первые limit записей по убыванию cumulative_score,
	// при равенстве по возрастанию participant_id. Читается одним запросом.
	Top(ctx context.Context, limit int) ([]entity.ScoreRecord, error)
}
