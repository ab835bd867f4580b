package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/config"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	"github.com/dha2608/MLN-AI/internal/handler"
	"github.com/dha2608/MLN-AI/internal/middleware"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	"github.com/dha2608/MLN-AI/internal/pkg/logger"
	"github.com/dha2608/MLN-AI/internal/repository/memory"
	pgRepo "github.com/dha2608/MLN-AI/internal/repository/postgres"
	redisRepo "github.com/dha2608/MLN-AI/internal/repository/redis"
	"github.com/dha2608/MLN-AI/internal/service"
	ws "github.com/dha2608/MLN-AI/internal/websocket"
	"github.com/dha2608/MLN-AI/pkg/auth"
	"github.com/dha2608/MLN-AI/pkg/database"
)

// storage репозитории выбранного драйвера
type storage struct {
	ledger    repository.ScoreLedger
	registry  repository.MatchRegistry
	directory repository.Directory
	pinger    handler.Pinger
	close     func()
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Info("Загрузка конфигурации", zap.String("path", configPath))

	cfg, err := config.Load(configPath, log)
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.close()

	// Redis необязателен: без него нет кэша таблицы лидеров, rate limiting и межинстансовой ленты
	var (
		redisClient redis.UniversalClient
		cache       repository.CacheRepository
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewUniversalRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Successfully connected to Redis", zap.String("mode", cfg.Redis.Mode))

		cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			log.Fatal("Failed to initialize CacheRepo", zap.Error(err))
		}
		cache = cacheRepo
	}

	// Лента событий матчей
	var pubSubProvider ws.PubSubProvider = ws.NoOpPubSub{}
	clustered := cfg.WebSocket.ClusterEnabled
	if clustered {
		if redisClient == nil {
			log.Warn("websocket.cluster_enabled requires Redis, falling back to in-process delivery")
			clustered = false
		} else {
			redisPubSub, err := ws.NewRedisPubSub(redisClient, log)
			if err != nil {
				log.Fatal("Failed to initialize Redis PubSub", zap.Error(err))
			}
			pubSubProvider = redisPubSub
		}
	}
	hub := ws.NewHub(pubSubProvider, ws.HubConfig{Clustered: clustered, Channel: cfg.WebSocket.Channel}, log)

	// Часы в часовом поясе квиза
	loc, err := cfg.Quiz.Location()
	if err != nil {
		log.Fatal("Invalid quiz timezone", zap.Error(err))
	}
	clk := clock.NewReal(loc)

	// Сервисы
	leaderboardService := service.NewLeaderboardService(store.ledger, store.directory, cache, service.LeaderboardConfig{
		DefaultLimit:  cfg.Leaderboard.DefaultLimit,
		MaxLimit:      cfg.Leaderboard.MaxLimit,
		BatchSize:     cfg.Leaderboard.BatchSize,
		CacheTTL:      cfg.Leaderboard.CacheTTL,
		AnonymousName: cfg.Leaderboard.AnonymousName,
		QueryTimeout:  cfg.Database.QueryTimeout,
	}, log)
	quizGate := service.NewQuizGate(store.ledger, clk, leaderboardService, service.QuizGateConfig{
		DefaultQuestions: int64(cfg.Quiz.QuestionsPerAttempt),
		MaxScore:         cfg.Quiz.MaxScore,
		QueryTimeout:     cfg.Database.QueryTimeout,
	}, log)
	matchCoordinator := service.NewMatchCoordinator(store.registry, store.directory, clk, hub, service.MatchCoordinatorConfig{
		RoomCodeLength:   cfg.Match.RoomCodeLength,
		RoomCodeAttempts: cfg.Match.RoomCodeAttempts,
		QueryTimeout:     cfg.Database.QueryTimeout,
		AnonymousName:    cfg.Leaderboard.AnonymousName,
		MaxScore:         cfg.Quiz.MaxScore,
	}, log)

	sweeper := service.NewMatchSweeper(matchCoordinator, store.registry, clk, cfg.Match.MaxPlayDuration, cfg.Match.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start match sweeper", zap.Error(err))
	}

	// Контекст для фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error("Match event hub stopped", zap.Error(err))
		}
	}()

	// Проверка токенов провайдера идентификации
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	if err != nil {
		log.Fatal("Failed to initialize token verifier", zap.Error(err))
	}

	clientConfig := ws.DefaultClientConfig()
	clientConfig.BufferSize = cfg.WebSocket.SendBuffer

	routes := &handler.Router{
		Quiz:        handler.NewQuizHandler(quizGate, log),
		Match:       handler.NewMatchHandler(matchCoordinator, log),
		Leaderboard: handler.NewLeaderboardHandler(leaderboardService, clk, log),
		Health: handler.NewHealthHandler(store.pinger, handler.HealthInfo{
			DatabaseDriver: cfg.Database.Driver,
			RedisEnabled:   redisClient != nil,
			AuthConfigured: cfg.Auth.JWTSecret != "",
		}, log),
		WS:          handler.NewWSHandler(hub, matchCoordinator, clientConfig, cfg.Server.AllowedOrigins, log),
		Auth:        middleware.NewAuthMiddleware(verifier, log),
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
	}

	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log))

	if gin.Mode() == gin.ReleaseMode {
		// Production: не доверять прокси-заголовкам
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Настройка CORS. Тот же список используется для проверки Origin у WebSocket.
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.Register(router)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Останавливаем фоновые горутины и ждём текущий проход чистильщика
	cancel()
	<-sweeper.Stop().Done()

	if err := pubSubProvider.Close(); err != nil {
		log.Warn("Error closing PubSub provider", zap.Error(err))
	}

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited properly")
}

// openStorage выбирает хранилище по database.driver
func openStorage(cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("Using in-memory storage: data is lost on restart and not shared between instances")
		return &storage{
			ledger:    memory.NewScoreLedger(),
			registry:  memory.NewMatchRegistry(),
			directory: memory.NewDirectory(),
			close:     func() {},
		}, nil
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), cfg.Log.Mode)
	if err != nil {
		return nil, err
	}

	// Применяем миграции
	if err := database.MigrateDB(db, cfg.Database.MigrationsPath, log); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	return &storage{
		ledger:    pgRepo.NewScoreRepo(db),
		registry:  pgRepo.NewMatchRepo(db),
		directory: pgRepo.NewDirectoryRepo(db),
		pinger:    sqlDB,
		close: func() {
			if err := sqlDB.Close(); err != nil {
				log.Warn("Error closing database", zap.Error(err))
			}
		},
	}, nil
}
