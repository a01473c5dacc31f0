// Package staff signs staff members in and verifies their dashboard sessions.
package staff

import (
	"context"
	"log/slog"
	"time"

	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/requestcontext"
)

// Session is an issued dashboard session.
type Session struct {
	Token     string
	Email     string
	ExpiresAt time.Time
}

// Service exchanges staff credentials for session tokens.
type Service struct {
	credentials *Credentials
	tokens      *TokenService
	logger      *slog.Logger
}

func NewService(credentials *Credentials, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{credentials: credentials, tokens: tokens, logger: logger}
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	canonical, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.WarnContext(ctx, "staff login failed",
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
		)
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(canonical, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session")
	}
	s.logger.InfoContext(ctx, "staff signed in",
		"request_id", requestcontext.RequestID(ctx),
		"staff", canonical,
	)
	return &Session{Token: token, Email: canonical, ExpiresAt: expiresAt}, nil
}
