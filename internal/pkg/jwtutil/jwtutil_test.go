package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Minute, "ops")
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Minute, "ops")
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("s3cret", -time.Minute, "ops")
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("s3cret", "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateToken_EmptySecret(t *testing.T) {
	_, err := GenerateToken("", time.Minute, "ops")
	assert.Error(t, err)
}
