package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dha2608/MLN-AI/internal/middleware"
)

// Router собирает обработчики и middleware в маршруты /api и /ws
type Router struct {
	Quiz        *QuizHandler
	Match       *MatchHandler
	Leaderboard *LeaderboardHandler
	Health      *HealthHandler
	WS          *WSHandler

	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
}

// Register регистрирует маршруты на engine
func (r *Router) Register(engine *gin.Engine) {
	matchIDParam := middleware.ExtractUUIDParam("id", MatchIDKey)

	api := engine.Group("/api")
	{
		// Публичные маршруты
		api.GET("/health", r.Health.Health)
		api.GET("/health/db", r.Health.Database)
		api.GET("/leaderboard", r.Leaderboard.GetLeaderboard)
		api.GET("/leaderboard/export", r.Leaderboard.ExportLeaderboard)

		quiz := api.Group("/quiz")
		quiz.Use(r.Auth.RequireAuth())
		{
			quiz.GET("/status", r.Quiz.GetStatus)
			quiz.POST("/submit", r.RateLimiter.Limit(middleware.SubmitRateLimitConfig()), r.Quiz.Submit)
		}

		match := api.Group("/match")
		match.Use(r.Auth.RequireAuth(), r.RateLimiter.Limit(middleware.MatchRateLimitConfig()))
		{
			match.POST("/create", r.Match.Create)
			match.POST("/join", r.Match.Join)
			match.POST("/score", r.Match.ReportScore)

			matchWithID := match.Group("/:id")
			matchWithID.Use(matchIDParam)
			{
				matchWithID.GET("", r.Match.GetState)
				matchWithID.POST("/start", r.Match.Start)
				matchWithID.POST("/finish", r.Match.Finish)
				matchWithID.POST("/ready", r.Match.Ready)
			}
		}
	}

	// Браузер не умеет передавать заголовок Authorization при upgrade, токен идёт в ?token=
	engine.GET("/ws/match/:id", r.Auth.RequireAuthQuery(), matchIDParam, r.WS.HandleMatchFeed)
}
