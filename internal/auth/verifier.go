package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"relay-service/internal/models"
	"relay-service/internal/repositories"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier resolves a bearer credential to a user identity. The relay
// treats it as a black box: any failure means the connection is refused.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.User, error)
}

// JWTVerifier validates HS256 tokens whose subject claim carries the
// username, then resolves the user against the store.
type JWTVerifier struct {
	secret []byte
	users  repositories.UserRepository
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string, users repositories.UserRepository) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), users: users}
}

// Verify parses and validates the token and returns the matching user.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return models.User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	user, err := v.users.FindByUsername(ctx, subject)
	if err != nil {
		// Do not distinguish unknown users from bad tokens for the client.
		return models.User{}, fmt.Errorf("%w: user validation failed", ErrInvalidToken)
	}
	return user, nil
}
