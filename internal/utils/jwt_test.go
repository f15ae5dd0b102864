package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetJWTSecret("test-secret-key-for-testing")
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(42, "ana", "admin", 24)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)

	other, err := GenerateToken(43, "bo", "user", 24)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(1, "ana", "user", -1)
	require.NoError(t, err)

	_, err = ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_Rejects(t *testing.T) {
	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	foreignIssuer := valid
	foreignIssuer.Issuer = "someone-else"
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"garbage":        "not.a.token",
		"empty":          "",
		"wrong secret":   sign(jwt.SigningMethodHS256, []byte("other-secret"), valid),
		"wrong method":   sign(jwt.SigningMethodHS512, []byte("test-secret-key-for-testing"), valid),
		"unsigned":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
		"foreign issuer": sign(jwt.SigningMethodHS256, []byte("test-secret-key-for-testing"), foreignIssuer),
		"no expiry":      sign(jwt.SigningMethodHS256, []byte("test-secret-key-for-testing"), noExpiry),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestSetJWTSecret_InvalidatesOldTokens(t *testing.T) {
	token, err := GenerateToken(1, "ana", "user", 1)
	require.NoError(t, err)

	SetJWTSecret("rotated")
	defer SetJWTSecret("test-secret-key-for-testing")

	_, err = ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
