package resume

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/platform/sentinel"
	"leadtriage/pkg/requestcontext"
)

// Handler serves stored resumes to staff.
type Handler struct {
	storage *Storage
	logger  *slog.Logger
}

// NewHandler constructs a resume handler.
func NewHandler(storage *Storage, logger *slog.Logger) *Handler {
	return &Handler{storage: storage, logger: logger}
}

// Register mounts resume endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get(URLPrefix+"{name}", h.HandleGet)
}

// HandleGet handles GET /resumes/{name}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	f, err := h.storage.Open(name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Resume not found"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to open resume",
			"request_id", requestcontext.RequestID(ctx),
			"name", name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stat resume"))
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="`+f.Name+`"`)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, f.Name, info.ModTime(), f)
}
