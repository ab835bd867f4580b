package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MaxScoreCeiling предел quiz.max_score, совпадает с ограничением тела запроса
const MaxScoreCeiling = 1000000

// Config хранит все настройки приложения
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Quiz        QuizConfig
	Match       MatchConfig
	Leaderboard LeaderboardConfig
	WebSocket   WebSocketConfig
	Log         LogConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	// Driver: "postgres" (по умолчанию) или "memory" для локальной разработки без БД.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// QueryTimeout: верхняя граница для одной операции с хранилищем.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// MigrationsPath: источник миграций для golang-migrate.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	// Используется, если Mode="single" и Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// Enabled сообщает, настроен ли Redis вообще
func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// AuthConfig содержит настройки проверки токенов внешнего провайдера идентификации
type AuthConfig struct {
	// JWTSecret: секрет подписи HS256 токенов Supabase (SUPABASE_JWT_SECRET)
	JWTSecret string `mapstructure:"jwt_secret"`
	// Audience: ожидаемое значение aud ("authenticated" у Supabase). Пусто - не проверяется.
	Audience string `mapstructure:"audience"`
}

// QuizConfig содержит настройки ежедневного квиза
type QuizConfig struct {
	// TimeZone: часовой пояс, в котором определяется "сегодня"
	TimeZone string `mapstructure:"timezone"`
	// QuestionsPerAttempt: сколько вопросов засчитывается за попытку, если клиент не прислал число
	QuestionsPerAttempt int `mapstructure:"questions_per_attempt"`
	// MaxScore: верхняя граница счёта за одну попытку квиза или отчёт в матче
	MaxScore int64 `mapstructure:"max_score"`
}

// MatchConfig содержит настройки мультиплеерных матчей
type MatchConfig struct {
	RoomCodeLength   int           `mapstructure:"room_code_length"`
	RoomCodeAttempts int           `mapstructure:"room_code_attempts"`
	MaxPlayDuration  time.Duration `mapstructure:"max_play_duration"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"`
}

// LeaderboardConfig содержит настройки таблицы лидеров
type LeaderboardConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit"`
	MaxLimit      int           `mapstructure:"max_limit"`
	BatchSize     int           `mapstructure:"batch_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	AnonymousName string        `mapstructure:"anonymous_name"`
}

// WebSocketConfig содержит настройки ленты событий матча
type WebSocketConfig struct {
	// ClusterEnabled: рассылать события через Redis Pub/Sub между инстансами
	ClusterEnabled bool   `mapstructure:"cluster_enabled"`
	Channel        string `mapstructure:"channel"`
	SendBuffer     int    `mapstructure:"send_buffer"`
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Mode string `mapstructure:"mode"` // "production" или "development"
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Location возвращает часовой пояс квиза
func (q QuizConfig) Location() (*time.Location, error) {
	return time.LoadLocation(q.TimeZone)
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 15)
	vip.SetDefault("server.write_timeout", 15)
	vip.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	vip.SetDefault("database.driver", "postgres")
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "require")
	vip.SetDefault("database.query_timeout", 5*time.Second)
	vip.SetDefault("database.migrations_path", "file://migrations")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("auth.audience", "authenticated")

	vip.SetDefault("quiz.timezone", "Asia/Ho_Chi_Minh")
	vip.SetDefault("quiz.questions_per_attempt", 5)
	vip.SetDefault("quiz.max_score", 10000)

	vip.SetDefault("match.room_code_length", 6)
	vip.SetDefault("match.room_code_attempts", 8)
	vip.SetDefault("match.max_play_duration", 2*time.Hour)
	vip.SetDefault("match.sweep_schedule", "@every 5m")

	vip.SetDefault("leaderboard.default_limit", 10)
	vip.SetDefault("leaderboard.max_limit", 100)
	vip.SetDefault("leaderboard.batch_size", 50)
	vip.SetDefault("leaderboard.cache_ttl", 30*time.Second)
	vip.SetDefault("leaderboard.anonymous_name", "Người dùng ẩn danh")

	vip.SetDefault("websocket.channel", "match-events")
	vip.SetDefault("websocket.send_buffer", 16)

	vip.SetDefault("log.mode", "production")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string, logger *zap.Logger) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, чтобы избежать глобального состояния

	setDefaults(vip)

	// Привязка для секции Database
	vip.BindEnv("database.driver", "DATABASE_DRIVER")
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.query_timeout", "DATABASE_QUERY_TIMEOUT")
	vip.BindEnv("database.migrations_path", "DATABASE_MIGRATIONS_PATH")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции Auth
	vip.BindEnv("auth.jwt_secret", "SUPABASE_JWT_SECRET")
	vip.BindEnv("auth.audience", "AUTH_AUDIENCE")

	// Квиз и матчи
	vip.BindEnv("quiz.timezone", "QUIZ_TIMEZONE")
	vip.BindEnv("quiz.questions_per_attempt", "QUIZ_QUESTIONS_PER_ATTEMPT")
	vip.BindEnv("quiz.max_score", "QUIZ_MAX_SCORE")
	vip.BindEnv("match.max_play_duration", "MATCH_MAX_PLAY_DURATION")
	vip.BindEnv("match.sweep_schedule", "MATCH_SWEEP_SCHEDULE")
	vip.BindEnv("leaderboard.cache_ttl", "LEADERBOARD_CACHE_TTL")

	// Server, WebSocket, Log
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("websocket.cluster_enabled", "WEBSOCKET_CLUSTER_ENABLED")
	vip.BindEnv("log.mode", "LOG_MODE")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файл не обязателен: всё можно задать через переменные окружения
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				logger.Info("Файл конфигурации не найден, используются переменные окружения/умолчания", zap.String("path", configPath))
			} else {
				logger.Warn("Не удалось прочитать файл конфигурации", zap.String("path", configPath), zap.Error(err))
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_ADDRS приходит строкой "host1:6379,host2:6379"
	if len(cfg.Redis.Addrs) == 1 && strings.Contains(cfg.Redis.Addrs[0], ",") {
		cfg.Redis.Addrs = strings.Split(cfg.Redis.Addrs[0], ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Debug("Конфигурация загружена",
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.DBName),
		zap.String("redis_mode", cfg.Redis.Mode),
		zap.Bool("redis_enabled", cfg.Redis.Enabled()),
		zap.Bool("jwt_secret_set", cfg.Auth.JWTSecret != ""),
		zap.String("quiz_timezone", cfg.Quiz.TimeZone),
		zap.String("server_port", cfg.Server.Port),
	)

	return &cfg, nil
}

// validate проверяет обязательные параметры
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required (check SUPABASE_JWT_SECRET env var)")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if _, err := c.Quiz.Location(); err != nil {
		return fmt.Errorf("invalid quiz timezone %q: %w", c.Quiz.TimeZone, err)
	}
	if c.Quiz.MaxScore <= 0 || c.Quiz.MaxScore > MaxScoreCeiling {
		return fmt.Errorf("quiz.max_score must be in [1, %d], got %d", MaxScoreCeiling, c.Quiz.MaxScore)
	}
	if c.Match.RoomCodeLength < 4 {
		return fmt.Errorf("match.room_code_length must be at least 4, got %d", c.Match.RoomCodeLength)
	}
	if c.Match.RoomCodeAttempts < 1 {
		return fmt.Errorf("match.room_code_attempts must be positive, got %d", c.Match.RoomCodeAttempts)
	}
	if c.Leaderboard.MaxLimit < c.Leaderboard.DefaultLimit {
		return fmt.Errorf("leaderboard.max_limit (%d) is less than default_limit (%d)", c.Leaderboard.MaxLimit, c.Leaderboard.DefaultLimit)
	}
	return nil
}
