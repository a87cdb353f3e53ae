package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifyRoundTrips(t *testing.T) {
	svc := NewTokenService("s3cret")

	token, err := svc.IssueToken("user-1", map[string]any{"role": "admin"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "admin", claims["role"])
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("s3cret")
	verifier := NewTokenService("different")

	token, err := issuer.IssueToken("user-1", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}
