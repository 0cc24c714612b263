package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"miprojet-payment-service/internal/config"
)

var ErrUnauthorized = errors.New("missing or invalid authorization token")

// UserIDFromRequest validates the Bearer session token and returns the
// authenticated user's id from its subject claim.
func UserIDFromRequest(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return uuid.Nil, ErrUnauthorized
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	secret := config.Get("JWT_SECRET", "")
	if secret == "" {
		return uuid.Nil, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrUnauthorized
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}

	return userID, nil
}
