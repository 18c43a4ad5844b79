package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"relay-service/internal/auth"
	"relay-service/internal/mocks"
	"relay-service/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyResolvesUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	verifier := auth.NewJWTVerifier(testSecret, users)

	users.On("FindByUsername", mock.Anything, "alice").
		Return(models.User{ID: 1, Username: "alice"}, nil).Once()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	user, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	users.AssertExpectations(t)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := auth.NewJWTVerifier(testSecret, new(mocks.UserRepositoryMock))

	token := signToken(t, "other-secret", jwt.MapClaims{"sub": "alice"})

	_, err := verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := auth.NewJWTVerifier(testSecret, new(mocks.UserRepositoryMock))

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	verifier := auth.NewJWTVerifier(testSecret, new(mocks.UserRepositoryMock))

	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	verifier := auth.NewJWTVerifier(testSecret, users)

	users.On("FindByUsername", mock.Anything, "ghost").
		Return(models.User{}, assert.AnError).Once()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "ghost",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	users.AssertExpectations(t)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	verifier := auth.NewJWTVerifier(testSecret, new(mocks.UserRepositoryMock))

	_, err := verifier.Verify(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
