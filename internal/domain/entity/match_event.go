package entity

import (
	"time"

	"github.com/google/uuid"
)

// Виды событий матча
const (
	MatchEventCreated  = "created"
	MatchEventJoined   = "joined"
	MatchEventReady    = "ready"
	MatchEventStarted  = "started"
	MatchEventScore    = "score"
	MatchEventFinished = "finished"
	MatchEventExpired  = "expired"
)

// MatchEvent уведомление о принятом изменении матча.
// Содержит только ссылку на матч: подписчики перечитывают актуальный снимок сами.
type MatchEvent struct {
	MatchID       uuid.UUID `json:"match_id"`
	Kind          string    `json:"kind"`
	ParticipantID string    `json:"participant_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
