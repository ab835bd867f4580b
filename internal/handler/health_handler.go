package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger проверяет доступность хранилища. *sql.DB удовлетворяет интерфейсу.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthInfo статические сведения о конфигурации для /api/health
type HealthInfo struct {
	DatabaseDriver string
	RedisEnabled   bool
	AuthConfigured bool
}

// HealthHandler отвечает на проверки живости
type HealthHandler struct {
	db      Pinger
	info    HealthInfo
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler создает обработчик проверок. db == nil для хранилища в памяти.
func NewHealthHandler(db Pinger, info HealthInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, info: info, timeout: 2 * time.Second, logger: logger}
}

// Health сообщает, что процесс жив, и какие части конфигурации заданы
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	if !h.info.AuthConfigured {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"database":        h.info.DatabaseDriver,
		"redis":           h.info.RedisEnabled,
		"auth_configured": h.info.AuthConfigured,
		"time":            time.Now().UTC(),
	})
}

// Database пингует хранилище
func (h *HealthHandler) Database(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": h.info.DatabaseDriver})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("Database health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": h.info.DatabaseDriver})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"database":   h.info.DatabaseDriver,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}
