package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/requestcontext"
)

// Session is a verified staff session.
type Session struct {
	Email     string
	ExpiresAt time.Time
}

// SessionVerifier checks a bearer credential and returns the session it proves.
// Implementations must verify the credential cryptographically or against a
// server-side record; presence alone is never enough.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// RequireSession rejects requests without a verifiable staff session and
// stores the staff identity in the request context.
func RequireSession(verifier SessionVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			session, err := verifier.Verify(ctx, strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired session"))
				return
			}

			ctx = requestcontext.WithStaffEmail(ctx, session.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
