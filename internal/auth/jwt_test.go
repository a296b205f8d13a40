package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func TestGenerateAndValidate(t *testing.T) {
	tokens := NewTokens(testSecret, 7*24*time.Hour)

	token, err := tokens.Generate(42, "user@test.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, "user@test.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt, time.Minute)
}

func TestValidate(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	valid, err := tokens.Generate(7, "user@test.com")
	require.NoError(t, err)

	expired, err := NewTokens(testSecret, -time.Hour).Generate(7, "user@test.com")
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "7",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "not-a-number",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name      string
		tokens    *Tokens
		token     string
		wantErrIs error
	}{
		{"expired token", tokens, expired, jwt.ErrTokenExpired},
		{"wrong secret", NewTokens("wrong-secret", time.Hour), valid, jwt.ErrTokenSignatureInvalid},
		{"malformed token", tokens, "not.a.valid.jwt", jwt.ErrTokenMalformed},
		{"empty token", tokens, "", jwt.ErrTokenMalformed},
		{"foreign issuer", tokens, foreignIssuer, jwt.ErrTokenInvalidIssuer},
		{"non numeric subject", tokens, badSubject, ErrInvalidSubject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.tokens.Validate(tc.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErrIs)
		})
	}
}

func TestValidate_RejectsNonHMAC(t *testing.T) {
	// A token signed with "none" must not pass as HS256.
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
		UserID: "1",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokens(testSecret, time.Hour).Validate(signed)
	require.Error(t, err)
}

func TestAccountIDContext(t *testing.T) {
	_, ok := AccountIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithAccountID(context.Background(), 9)
	id, ok := AccountIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}
