package testutil

import (
	"net/http"
	"time"

	"leadtriage/pkg/requestcontext"
)

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithClientIP simulates the client metadata middleware.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
