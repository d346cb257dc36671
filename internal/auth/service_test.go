package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	svc := NewService("fxarena", []byte("test-secret"), time.Hour)

	token, err := svc.SignToken("user-1")
	require.NoError(t, err)

	userID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer := NewService("fxarena", []byte("secret-a"), time.Hour)
	verifier := NewService("fxarena", []byte("secret-b"), time.Hour)

	token, err := signer.SignToken("user-1")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	signer := NewService("someone-else", []byte("test-secret"), time.Hour)
	verifier := NewService("fxarena", []byte("test-secret"), time.Hour)

	token, err := signer.SignToken("user-1")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc := NewService("fxarena", []byte("test-secret"), -time.Minute)

	token, err := svc.SignToken("user-1")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	svc := NewService("fxarena", []byte("test-secret"), time.Hour)
	_, err := svc.ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
