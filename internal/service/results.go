package service

import (
	"gorm.io/datatypes"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// Rejection ожидаемый бизнес-отказ. Возвращается как значение результата, а не как ошибка.
type Rejection string

const (
	RejectAlreadyAttemptedToday Rejection = "already_attempted_today"
	RejectRoomNotJoinable       Rejection = "room_not_joinable"
	RejectNotHost               Rejection = "not_host"
	RejectNotParticipant        Rejection = "not_participant"
	RejectInvalidTransition     Rejection = "invalid_transition"
	RejectNotFound              Rejection = "not_found"
)

// QuizStatus ответ на запрос статуса ежедневного квиза
type QuizStatus struct {
	CanAttempt bool
	Today      datatypes.Date
	Record     *entity.ScoreRecord
}

// SubmitResult результат отправки попытки квиза
type SubmitResult struct {
	Record    *entity.ScoreRecord
	Rejection Rejection
}

// Accepted сообщает, засчитана ли попытка
func (r SubmitResult) Accepted() bool { return r.Rejection == "" }

// MatchResult результат операции над матчем (start, finish)
type MatchResult struct {
	Match     *entity.Match
	Rejection Rejection
}

// Accepted сообщает, принята ли операция
func (r MatchResult) Accepted() bool { return r.Rejection == "" }

// JoinResult результат присоединения к матчу
type JoinResult struct {
	Match       *entity.Match
	Participant *entity.MatchParticipant
	// Rejoined: участник уже был в матче, строка возвращена без изменений
	Rejoined  bool
	Rejection Rejection
}

// Accepted сообщает, принято ли присоединение
func (r JoinResult) Accepted() bool { return r.Rejection == "" }

// ParticipantResult результат операции над строкой участника (ready, score)
type ParticipantResult struct {
	Participant *entity.MatchParticipant
	Rejection   Rejection
}

// Accepted сообщает, принята ли операция
func (r ParticipantResult) Accepted() bool { return r.Rejection == "" }

// ParticipantView строка участника вместе с отображаемым именем
type ParticipantView struct {
	entity.MatchParticipant
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// MatchSnapshot согласованный снимок матча для опрашивающих клиентов
type MatchSnapshot struct {
	Match        entity.Match      `json:"match"`
	Participants []ParticipantView `json:"participants"`
}

// SnapshotResult результат чтения снимка
type SnapshotResult struct {
	Snapshot  *MatchSnapshot
	Rejection Rejection
}

// Accepted сообщает, найден ли матч
func (r SnapshotResult) Accepted() bool { return r.Rejection == "" }
