package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "unimem-test",
			Audience:  jwt.ClaimStrings{"unimem"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

func newTestValidator(t *testing.T) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Issuer:        "unimem-test",
		Audience:      []string{"unimem"},
	})
	require.NoError(t, err)
	return v
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	v := newTestValidator(t)

	t.Run("valid bearer token", func(t *testing.T) {
		claims, err := v.ValidateToken("Bearer " + signHS256(t, testSecret, validClaims()))

		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := v.ValidateToken("Bearer ")

		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("expired token", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

		_, err := v.ValidateToken(signHS256(t, testSecret, c))

		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.ValidateToken(signHS256(t, "other-secret", validClaims()))

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := validClaims()
		c.Issuer = "someone-else"

		_, err := v.ValidateToken(signHS256(t, testSecret, c))

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := validClaims()
		c.Audience = jwt.ClaimStrings{"other"}

		_, err := v.ValidateToken(signHS256(t, testSecret, c))

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := validClaims()
		c.UserID = ""

		_, err := v.ValidateToken(signHS256(t, testSecret, c))

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestNewJWTValidator_RequiresKeys(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "RS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "ES512", SecretKey: "x"})
	assert.Error(t, err)
}

func TestUserContextRoundTrip(t *testing.T) {
	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "u1"})

	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)

	_, err = GetUserFromContext(context.Background())
	assert.Error(t, err)
}

func TestKeyedLimiter_Allow(t *testing.T) {
	l := NewKeyedLimiter(2)
	ctx := context.Background()

	first, _ := l.Allow(ctx, "a")
	second, _ := l.Allow(ctx, "a")
	third, _ := l.Allow(ctx, "a")
	other, _ := l.Allow(ctx, "b")

	assert.True(t, first)
	assert.True(t, second)
	assert.False(t, third)
	assert.True(t, other)

	require.NoError(t, l.Reset(ctx, "a"))
	again, _ := l.Allow(ctx, "a")
	assert.True(t, again)
}
