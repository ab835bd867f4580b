package dto

import "github.com/dha2608/MLN-AI/internal/service"

// LeaderboardResponse ответ GET /api/leaderboard
type LeaderboardResponse struct {
	Limit   int                        `json:"limit"`
	Entries []service.LeaderboardEntry `json:"entries"`
}
