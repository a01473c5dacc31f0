package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"leadtriage/internal/staff"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/requestcontext"
)

// Service signs staff in.
type Service interface {
	Login(ctx context.Context, email, password string) (*staff.Session, error)
}

// Handler wires staff session endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts staff endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/staff/sessions", h.HandleLogin)
}

// LoginRequest is the body of POST /staff/sessions.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email and password are required")
	}
	return nil
}

// SessionResponse carries the issued token.
type SessionResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleLogin handles POST /staff/sessions.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, SessionResponse{
		Token:     session.Token,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt,
	})
}
