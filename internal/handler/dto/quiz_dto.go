package dto

import (
	"time"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	"github.com/dha2608/MLN-AI/internal/service"
)

// SubmitQuizRequest тело запроса POST /api/quiz/submit.
// Questions необязателен: при отсутствии используется размер попытки по умолчанию.
type SubmitQuizRequest struct {
	Score     *int64 `json:"score" binding:"required,min=0,max=1000000"`
	Questions int64  `json:"questions" binding:"omitempty,min=1,max=1000"`
}

// ScoreRecordResponse накопительный счёт участника
type ScoreRecordResponse struct {
	ParticipantID          string    `json:"participant_id"`
	CumulativeScore        int64     `json:"cumulative_score"`
	LastAttemptDate        string    `json:"last_attempt_date,omitempty"`
	TotalQuestionsAnswered int64     `json:"total_questions_answered"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// QuizStatusResponse ответ GET /api/quiz/status
type QuizStatusResponse struct {
	CanAttempt bool                 `json:"can_attempt"`
	Today      string               `json:"today"`
	Record     *ScoreRecordResponse `json:"record,omitempty"`
}

// NewScoreRecordResponse конвертирует запись журнала в DTO. nil остаётся nil.
func NewScoreRecordResponse(rec *entity.ScoreRecord) *ScoreRecordResponse {
	if rec == nil {
		return nil
	}
	resp := &ScoreRecordResponse{
		ParticipantID:          rec.ParticipantID,
		CumulativeScore:        rec.CumulativeScore,
		TotalQuestionsAnswered: rec.TotalQuestions,
		UpdatedAt:              rec.UpdatedAt,
	}
	if rec.LastAttemptDate != nil {
		resp.LastAttemptDate = clock.FormatDate(*rec.LastAttemptDate)
	}
	return resp
}

// NewQuizStatusResponse конвертирует статус шлюза в DTO
func NewQuizStatusResponse(status *service.QuizStatus) QuizStatusResponse {
	return QuizStatusResponse{
		CanAttempt: status.CanAttempt,
		Today:      clock.FormatDate(status.Today),
		Record:     NewScoreRecordResponse(status.Record),
	}
}
