package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("test-secret", 42, "reader@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ValidateJWT("test-secret", token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, userID)
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("test-secret", 42, "reader@example.com")
	require.NoError(t, err)

	_, err = ValidateJWT("other-secret", token)
	assert.Error(t, err)
}

func TestJWTGarbageToken(t *testing.T) {
	_, err := ValidateJWT("test-secret", "not-a-token")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong password", hash))
}
