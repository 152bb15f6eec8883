package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videoflix/videoflix/internal"
)

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := internal.IssueToken("secret", "user-42", time.Hour)
	require.NoError(t, err)

	subject, err := internal.VerifyToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, err := internal.IssueToken("secret", "user-42", time.Hour)
	require.NoError(t, err)

	_, err = internal.VerifyToken("other-secret", token)
	assert.ErrorIs(t, err, internal.ErrInvalidToken)
}

func TestVerifyTokenExpired(t *testing.T) {
	token, err := internal.IssueToken("secret", "user-42", -time.Minute)
	require.NoError(t, err)

	_, err = internal.VerifyToken("secret", token)
	assert.ErrorIs(t, err, internal.ErrInvalidToken)
}

func TestVerifyTokenGarbage(t *testing.T) {
	_, err := internal.VerifyToken("secret", "not-a-token")
	assert.ErrorIs(t, err, internal.ErrInvalidToken)
}
