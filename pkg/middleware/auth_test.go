package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseTokenValidClaims(t *testing.T) {
	tokenStr := mintToken(t, jwt.MapClaims{
		"user_id":  "u1",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	userID, username, ok := ParseToken(tokenStr, testSecret)
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "alice", username)
}

func TestParseTokenSubFallback(t *testing.T) {
	tokenStr := mintToken(t, jwt.MapClaims{
		"sub":      "u2",
		"username": "bob",
	}, testSecret)

	userID, username, ok := ParseToken(tokenStr, testSecret)
	require.True(t, ok)
	assert.Equal(t, "u2", userID)
	assert.Equal(t, "bob", username)
}

func TestParseTokenWrongSecret(t *testing.T) {
	tokenStr := mintToken(t, jwt.MapClaims{"user_id": "u1"}, "other-secret")

	_, _, ok := ParseToken(tokenStr, testSecret)
	assert.False(t, ok)
}

func TestParseTokenExpired(t *testing.T) {
	tokenStr := mintToken(t, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	_, _, ok := ParseToken(tokenStr, testSecret)
	assert.False(t, ok)
}

func TestParseTokenMissingIdentity(t *testing.T) {
	tokenStr := mintToken(t, jwt.MapClaims{"username": "ghost"}, testSecret)

	_, _, ok := ParseToken(tokenStr, testSecret)
	assert.False(t, ok)
}

func TestParseTokenGarbage(t *testing.T) {
	_, _, ok := ParseToken("not-a-token", testSecret)
	assert.False(t, ok)
}
