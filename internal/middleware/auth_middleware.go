package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/pkg/auth"
)

// ParticipantIDKey ключ контекста gin с идентификатором участника
const ParticipantIDKey = "participant_id"

// TokenVerifier проверяет токен провайдера идентификации
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware создает middleware аутентификации
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// RequireAuth проверяет токен из заголовка Authorization: Bearer {token}
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		m.authenticate(c, token)
	}
}

// RequireAuthQuery дополнительно принимает токен из параметра ?token= (браузерный WebSocket не умеет заголовки)
func (m *AuthMiddleware) RequireAuthQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" {
			m.authenticate(c, token)
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		m.authenticate(c, token)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
		return "", false
	}

	// Проверяем формат заголовка Bearer {token}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func (m *AuthMiddleware) authenticate(c *gin.Context, token string) {
	identity, err := m.verifier.Verify(token)
	if err != nil {
		errorType := "token_invalid"
		if errors.Is(err, auth.ErrExpiredToken) {
			errorType = "token_expired"
		}
		m.logger.Debug("[AuthMiddleware] Токен отклонён", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": errorType})
		return
	}

	c.Set(ParticipantIDKey, identity.ParticipantID)
	c.Set("email", identity.Email)
	c.Next()
}

// ParticipantID возвращает идентификатор аутентифицированного участника
func ParticipantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ParticipantIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
