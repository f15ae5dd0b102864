package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("scan-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "scan-secret", hash)
	assert.Contains(t, hash, "$2")

	again, err := HashPassword("scan-secret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "hashes are salted")
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("scan-secret")
	require.NoError(t, err)

	assert.True(t, CheckPassword("scan-secret", hash))
	assert.False(t, CheckPassword("scan-secret ", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("scan-secret", "not-a-bcrypt-hash"))
	assert.False(t, CheckPassword("scan-secret", ""))
}
