package auth

import (
	"context"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type Claims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает HS256-токен. Сам сервис токены не раздаёт, это нужно cargoctl и тестам.
func GenerateToken(secret string, p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   p.ID,
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	return s, errors.Wrap(err, "sign token")
}

var errInvalidToken = errors.New("invalid or expired token")

// ParseToken проверяет подпись и срок действия и возвращает принципала.
func ParseToken(secret, tokenStr string) (models.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, errInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !claims.Role.Valid() {
		return models.Principal{}, errInvalidToken
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	return models.Principal{ID: id, Username: claims.Username, Role: claims.Role}, nil
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(models.Principal)
	return p, ok
}
