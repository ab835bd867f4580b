// Package auth проверяет токены внешнего провайдера идентификации (Supabase GoTrue).
// Выпуск токенов здесь не реализуется.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken токен не прошёл проверку подписи или формата
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken срок действия токена истёк
	ErrExpiredToken = errors.New("token expired")
)

// SupabaseClaims содержит поля токена Supabase, нужные сервису
type SupabaseClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity проверенная личность участника
type Identity struct {
	ParticipantID string
	Email         string
	Role          string
}

// Verifier проверяет HS256-токены общим секретом проекта
type Verifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewVerifier создает проверяющий объект. Пустой audience отключает проверку aud.
func NewVerifier(secret, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), audience: audience, now: time.Now}, nil
}

// Verify разбирает и проверяет токен, возвращая участника из claim sub
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &SupabaseClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		ParticipantID: claims.Subject,
		Email:         claims.Email,
		Role:          claims.Role,
	}, nil
}
