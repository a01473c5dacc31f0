package staff

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/requestcontext"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestTokenService(t *testing.T) {
	tokens := NewTokenService("test-signing-key", time.Hour)
	ctx := context.Background()

	t.Run("issued token verifies", func(t *testing.T) {
		token, expiresAt, err := tokens.Issue("staff@example.com", time.Now())
		require.NoError(t, err)

		session, err := tokens.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "staff@example.com", session.Email)
		assert.WithinDuration(t, expiresAt, session.ExpiresAt, time.Second)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, _, err := tokens.Issue("staff@example.com", time.Now().Add(-2*time.Hour))
		require.NoError(t, err)

		_, err = tokens.Verify(ctx, token)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		other := NewTokenService("other-key", time.Hour)
		token, _, err := other.Issue("staff@example.com", time.Now())
		require.NoError(t, err)

		_, err = tokens.Verify(ctx, token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unsigned token is rejected", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: "x@example.com"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tokens.Verify(ctx, token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := tokens.Verify(ctx, "invalid-token-string")
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})
}

func TestCredentials(t *testing.T) {
	creds := NewCredentials(map[string]string{"Staff@Example.com": hash(t, "s3cret")})
	ctx := context.Background()

	email, err := creds.Authenticate(ctx, " staff@example.COM ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "staff@example.com", email)

	_, err = creds.Authenticate(ctx, "staff@example.com", "wrong")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = creds.Authenticate(ctx, "nobody@example.com", "s3cret")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestServiceLogin(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	tokens := NewTokenService("test-signing-key", 8*time.Hour)
	svc := NewService(
		NewCredentials(map[string]string{"staff@example.com": hash(t, "s3cret")}),
		tokens,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	session, err := svc.Login(ctx, "staff@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, now.Add(8*time.Hour), session.ExpiresAt)
	assert.NotEmpty(t, session.Token)

	_, err = svc.Login(ctx, "staff@example.com", "nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
