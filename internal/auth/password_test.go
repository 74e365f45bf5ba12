package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPasswordCost("correct horse", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("Correct horse", hash))
	assert.False(t, CheckPassword("correct horse", "not-a-hash"))
}

func TestHashPasswordIsSalted(t *testing.T) {
	a, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPasswordCostOutOfRange(t *testing.T) {
	hash, err := HashPasswordCost("pw", 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	require.NoError(t, err)
	b, err := GenerateSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
