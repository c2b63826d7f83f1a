package services

import (
	"testing"
	"time"

	"quillroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	token, err := auth.GenerateToken("user_a", "a@example.com", "Alice")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user_a"), claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	auth := NewAuthService("test-secret", -time.Minute, 24*time.Hour)

	token, err := auth.GenerateToken("user_a", "", "")
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenFromDifferentSecretIsRejected(t *testing.T) {
	issuer := NewAuthService("secret-one", time.Hour, 24*time.Hour)
	validator := NewAuthService("secret-two", time.Hour, 24*time.Hour)

	token, err := issuer.GenerateToken("user_a", "", "")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageTokenIsRejected(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	_, err := auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	token, err := auth.GenerateRefreshToken("user_a")
	require.NoError(t, err)

	claims, err := auth.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user_a"), claims.UserID)
	assert.Empty(t, claims.Email)
}
