package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ScoreRecord накопительный счёт участника в ежедневном квизе.
// Создаётся лениво при первой попытке, изменяется только через шлюз квиза и никогда не удаляется.
type ScoreRecord struct {
	ParticipantID   string          `gorm:"primaryKey;size:64" json:"participant_id"`
	CumulativeScore int64           `gorm:"not null;default:0;index:idx_score_records_leaderboard,sort:desc" json:"cumulative_score"`
	LastAttemptDate *datatypes.Date `gorm:"type:date" json:"last_attempt_date,omitempty"`
	TotalQuestions  int64           `gorm:"column:total_questions;not null;default:0" json:"total_questions_answered"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (ScoreRecord) TableName() string {
	return "score_records"
}

// AttemptedOn проверяет, была ли засчитана попытка в указанный день
func (s *ScoreRecord) AttemptedOn(day datatypes.Date) bool {
	if s == nil || s.LastAttemptDate == nil {
		return false
	}
	return time.Time(*s.LastAttemptDate).Equal(time.Time(day))
}
