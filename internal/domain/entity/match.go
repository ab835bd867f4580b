package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Состояния матча. Переходы только вперёд: waiting → playing → finished.
const (
	MatchStateWaiting  = "waiting"
	MatchStatePlaying  = "playing"
	MatchStateFinished = "finished"
)

// Режимы матча
const (
	MatchModePvP  = "pvp"
	MatchModeCoop = "coop"
)

// Статусы участника в матче
const (
	ParticipantStatusJoined   = "joined"
	ParticipantStatusReady    = "ready"
	ParticipantStatusFinished = "finished"
)

// Match представляет мультиплеерную комнату.
// room_code уникален среди незавершённых матчей (partial unique index).
type Match struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoomCode   string     `gorm:"size:16;not null" json:"room_code"`
	HostID     string     `gorm:"size:64;not null;index" json:"host_id"`
	Mode       string     `gorm:"size:10;not null;default:'pvp'" json:"mode"`
	State      string     `gorm:"size:10;not null;default:'waiting';index" json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Match) TableName() string {
	return "matches"
}

// IsWaiting проверяет, ожидает ли матч игроков
func (m *Match) IsWaiting() bool {
	return m.State == MatchStateWaiting
}

// IsPlaying проверяет, идёт ли игра
func (m *Match) IsPlaying() bool {
	return m.State == MatchStatePlaying
}

// IsFinished проверяет, завершён ли матч
func (m *Match) IsFinished() bool {
	return m.State == MatchStateFinished
}

// IsHost проверяет, является ли участник хостом
func (m *Match) IsHost(participantID string) bool {
	return m.HostID == participantID
}

// MatchParticipant строка участия в матче. Ключ (match_id, participant_id) уникален.
type MatchParticipant struct {
	MatchID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"match_id"`
	ParticipantID string    `gorm:"size:64;primaryKey" json:"participant_id"`
	Score         int64     `gorm:"not null;default:0" json:"score"`
	Status        string    `gorm:"size:10;not null;default:'joined'" json:"status"`
	JoinedAt      time.Time `gorm:"not null" json:"joined_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (MatchParticipant) TableName() string {
	return "match_participants"
}

// ValidMatchMode проверяет режим матча
func ValidMatchMode(mode string) bool {
	return mode == MatchModePvP || mode == MatchModeCoop
}

// ValidMatchTransition проверяет допустимость перехода состояния.
// Пропуск и откат состояний запрещены.
func ValidMatchTransition(from, to string) bool {
	switch from {
	case MatchStateWaiting:
		return to == MatchStatePlaying
	case MatchStatePlaying:
		return to == MatchStateFinished
	}
	return false
}

// NormalizeRoomCode приводит код комнаты к каноническому виду (без пробелов, верхний регистр)
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
