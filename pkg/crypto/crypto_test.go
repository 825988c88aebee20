package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	require.True(t, VerifyPassword(hash, "secret"))
	require.False(t, VerifyPassword(hash, "incorrect"))
}

func TestGenerateTokenEncodesRequestedEntropy(t *testing.T) {
	token, err := GenerateToken(48)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.Len(t, raw, 48)
	require.Len(t, token, 64)

	other, err := GenerateToken(48)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestGenerateTokenRejectsNonPositiveLength(t *testing.T) {
	_, err := GenerateToken(0)
	require.ErrorIs(t, err, ErrTokenLength)
}

func TestHashTokenIsStable(t *testing.T) {
	digest := HashToken("abc")
	require.Len(t, digest, 64)
	require.Equal(t, digest, HashToken("abc"))
	require.NotEqual(t, digest, HashToken("abd"))

	require.True(t, TokenMatches("abc", digest))
	require.False(t, TokenMatches("abd", digest))
}
