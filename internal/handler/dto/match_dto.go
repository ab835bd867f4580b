package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/service"
)

// CreateMatchRequest тело POST /api/match/create. Пустой mode означает pvp.
type CreateMatchRequest struct {
	Mode string `json:"mode" binding:"omitempty,max=10"`
}

// JoinMatchRequest тело POST /api/match/join
type JoinMatchRequest struct {
	RoomCode string `json:"room_code" binding:"required,min=4,max=16"`
}

// ReportScoreRequest тело POST /api/match/score.
// Счёт всегда относится к самому аутентифицированному участнику.
type ReportScoreRequest struct {
	MatchID uuid.UUID `json:"match_id" binding:"required"`
	Score   *int64    `json:"score" binding:"required,min=0,max=1000000"`
}

// MatchResponse представляет матч в формате для ответа клиенту
type MatchResponse struct {
	ID         uuid.UUID  `json:"id"`
	RoomCode   string     `json:"room_code"`
	HostID     string     `json:"host_id"`
	Mode       string     `json:"mode"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ParticipantResponse строка участника матча
type ParticipantResponse struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Score         int64     `json:"score"`
	Status        string    `json:"status"`
	JoinedAt      time.Time `json:"joined_at"`
}

// JoinMatchResponse ответ на присоединение к матчу
type JoinMatchResponse struct {
	Match       MatchResponse       `json:"match"`
	Participant ParticipantResponse `json:"participant"`
	Rejoined    bool                `json:"rejoined"`
}

// CreateMatchResponse ответ на создание матча
type CreateMatchResponse struct {
	Match MatchResponse       `json:"match"`
	Host  ParticipantResponse `json:"host"`
}

// MatchSnapshotResponse согласованный снимок матча для опроса
type MatchSnapshotResponse struct {
	Match        MatchResponse         `json:"match"`
	Participants []ParticipantResponse `json:"participants"`
}

// NewMatchResponse конвертирует матч в DTO
func NewMatchResponse(m *entity.Match) MatchResponse {
	return MatchResponse{
		ID:         m.ID,
		RoomCode:   m.RoomCode,
		HostID:     m.HostID,
		Mode:       m.Mode,
		State:      m.State,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		CreatedAt:  m.CreatedAt,
	}
}

// NewParticipantResponse конвертирует строку участника в DTO
func NewParticipantResponse(p *entity.MatchParticipant) ParticipantResponse {
	return ParticipantResponse{
		ParticipantID: p.ParticipantID,
		Score:         p.Score,
		Status:        p.Status,
		JoinedAt:      p.JoinedAt,
	}
}

// NewMatchSnapshotResponse конвертирует снимок матча в DTO
func NewMatchSnapshotResponse(s *service.MatchSnapshot) MatchSnapshotResponse {
	participants := make([]ParticipantResponse, 0, len(s.Participants))
	for i := range s.Participants {
		view := &s.Participants[i]
		p := NewParticipantResponse(&view.MatchParticipant)
		p.DisplayName = view.DisplayName
		p.AvatarURL = view.AvatarURL
		participants = append(participants, p)
	}
	return MatchSnapshotResponse{
		Match:        NewMatchResponse(&s.Match),
		Participants: participants,
	}
}
