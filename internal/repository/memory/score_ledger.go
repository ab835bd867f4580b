// Package memory содержит хранилища в памяти процесса для локальной разработки и тестов.
// Линеаризуемость обеспечивается мьютексом и действует только в пределах одного процесса.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// ScoreLedger реализует repository.ScoreLedger в памяти
type ScoreLedger struct {
	mu      sync.Mutex
	records map[string]*entity.ScoreRecord
	now     func() time.Time
}

// NewScoreLedger создает пустой журнал счетов
func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{
		records: make(map[string]*entity.ScoreRecord),
		now:     time.Now,
	}
}

func copyRecord(rec *entity.ScoreRecord) *entity.ScoreRecord {
	out := *rec
	if rec.LastAttemptDate != nil {
		day := *rec.LastAttemptDate
		out.LastAttemptDate = &day
	}
	return &out
}

// Get возвращает копию записи участника
func (l *ScoreLedger) Get(ctx context.Context, participantID string) (*entity.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[participantID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyRecord(rec), nil
}

// CommitAttempt засчитывает попытку, если за день on её ещё не было
func (l *ScoreLedger) CommitAttempt(ctx context.Context, participantID string, scoreDelta, questions int64, on datatypes.Date) (*entity.ScoreRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	day := on

	rec, ok := l.records[participantID]
	if !ok {
		rec = &entity.ScoreRecord{
			ParticipantID:   participantID,
			CumulativeScore: scoreDelta,
			LastAttemptDate: &day,
			TotalQuestions:  questions,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		l.records[participantID] = rec
		return copyRecord(rec), true, nil
	}

	if rec.AttemptedOn(on) {
		return copyRecord(rec), false, nil
	}

	if scoreDelta > math.MaxInt64-rec.CumulativeScore || questions > math.MaxInt64-rec.TotalQuestions {
		return nil, false, fmt.Errorf("%w: cumulative score out of range", apperrors.ErrValidation)
	}

	rec.CumulativeScore += scoreDelta
	rec.TotalQuestions += questions
	rec.LastAttemptDate = &day
	rec.UpdatedAt = now
	return copyRecord(rec), true, nil
}

// Top возвращает первые limit записей таблицы лидеров
func (l *ScoreLedger) Top(ctx context.Context, limit int) ([]entity.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	all := make([]entity.ScoreRecord, 0, len(l.records))
	for _, rec := range l.records {
		all = append(all, *copyRecord(rec))
	}
	l.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CumulativeScore != all[j].CumulativeScore {
			return all[i].CumulativeScore > all[j].CumulativeScore
		}
		return all[i].ParticipantID < all[j].ParticipantID
	})

	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
