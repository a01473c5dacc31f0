// Package handler exposes lead intake and review over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"leadtriage/internal/leads/intake"
	"leadtriage/internal/leads/models"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/requestcontext"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 1 << 20

// Service defines the lead operations used by the handlers.
type Service interface {
	Reference() *intake.ReferenceData
	Submit(ctx context.Context, in models.Intake) (*models.Lead, error)
	Validate(ctx context.Context, in models.Intake) error
	List(ctx context.Context) ([]*models.Lead, error)
	Search(ctx context.Context, searchText, statusFilter string) ([]*models.Lead, error)
	Get(ctx context.Context, id string) (*models.Lead, error)
	Update(ctx context.Context, id string, patch models.Patch) (*models.Lead, error)
	MarkReachedOut(ctx context.Context, id string) (*models.Lead, error)
}

// ResumeStore persists uploaded resumes.
type ResumeStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Discard(url string) error
	MaxBytes() int64
}

// Handler wires lead endpoints to the lead service.
type Handler struct {
	service Service
	resumes ResumeStore
	logger  *slog.Logger
}

// New constructs a lead handler. A nil resumes store rejects file uploads.
func New(service Service, resumes ResumeStore, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		resumes: resumes,
		logger:  logger,
	}
}

// RegisterPublic mounts the unauthenticated read endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/reference", h.HandleReference)
}

// RegisterIntake mounts lead submission. Callers wrap r with the intake rate
// limiter.
func (h *Handler) RegisterIntake(r chi.Router) {
	r.Post("/leads", h.HandleSubmit)
}

// RegisterReview mounts the staff review endpoints. Callers wrap r with the
// session middleware.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/leads", h.HandleList)
	r.Get("/leads/{id}", h.HandleGet)
	r.Patch("/leads/{id}", h.HandleUpdate)
	r.Post("/leads/{id}/reached-out", h.HandleMarkReachedOut)
}

// HandleReference handles GET /reference.
func (h *Handler) HandleReference(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromReference(h.service.Reference()))
}

// HandleSubmit handles POST /leads with either a JSON body or a multipart
// form carrying a resume file.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var (
		req           *SubmitRequest
		uploaded      string
		resumeProblem string
		ok            bool
		mediaType     string
	)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ = mime.ParseMediaType(ct)
	}
	if mediaType == "multipart/form-data" {
		req, uploaded, resumeProblem, ok = h.decodeMultipart(w, r)
	} else {
		req, ok = httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	}
	if !ok {
		return
	}
	if resumeProblem != "" {
		h.rejectResume(ctx, w, req.ToIntake(), resumeProblem)
		return
	}

	lead, err := h.service.Submit(ctx, req.ToIntake())
	if err != nil {
		if uploaded != "" {
			if derr := h.resumes.Discard(uploaded); derr != nil {
				h.logger.WarnContext(ctx, "failed to discard resume",
					"request_id", requestID,
					"resume", uploaded,
					"error", derr,
				)
			}
		}
		h.writeError(ctx, w, "lead submission failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, FromLead(lead))
}

// rejectResume answers a submission whose resume file was refused. The other
// fields are still validated so the client sees every problem at once.
func (h *Handler) rejectResume(ctx context.Context, w http.ResponseWriter, in models.Intake, problem string) {
	fields := make(map[string]string)
	if err := h.service.Validate(ctx, in); err != nil {
		de, ok := dErrors.As(err)
		if !ok || de.Code != dErrors.CodeValidation {
			h.writeError(ctx, w, "lead submission failed", err)
			return
		}
		maps.Copy(fields, de.Fields)
	}
	fields["resume"] = problem
	h.writeError(ctx, w, "lead submission failed", dErrors.Validation("Invalid lead submission", fields))
}

// resumeFieldMessage extracts the client-facing reason a resume was refused.
// Storage failures are not field problems and report false.
func resumeFieldMessage(err error) (string, bool) {
	de, ok := dErrors.As(err)
	if !ok {
		return "", false
	}
	switch de.Code {
	case dErrors.CodeValidation:
		if msg, ok := de.Fields["resume"]; ok {
			return msg, true
		}
		return de.Message, true
	case dErrors.CodeUnsupportedMediaType, dErrors.CodePayloadTooLarge:
		return de.Message, true
	default:
		return "", false
	}
}

// decodeMultipart parses the form and stores the resume file, if any. A file
// the store refuses comes back as a problem message instead of a response so
// it can be reported with the other fields. On any other failure it writes
// the error response and returns false.
func (h *Handler) decodeMultipart(w http.ResponseWriter, r *http.Request) (*SubmitRequest, string, string, bool) {
	ctx := r.Context()

	limit := int64(httputil.MaxJSONBodyBytes)
	if h.resumes != nil {
		limit += h.resumes.MaxBytes()
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(ctx, w, "multipart body too large", dErrors.New(dErrors.CodePayloadTooLarge, "request body too large"))
			return nil, "", "", false
		}
		h.writeError(ctx, w, "failed to parse multipart form", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form"))
		return nil, "", "", false
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	req, err := submitRequestFromForm(r.MultipartForm)
	if err != nil {
		h.writeError(ctx, w, "invalid multipart fields", err)
		return nil, "", "", false
	}

	files := r.MultipartForm.File["resume"]
	if len(files) == 0 {
		return req, "", "", true
	}
	if h.resumes == nil {
		h.writeError(ctx, w, "resume upload disabled", dErrors.New(dErrors.CodeBadRequest, "resume uploads are not enabled"))
		return nil, "", "", false
	}
	f, err := files[0].Open()
	if err != nil {
		h.writeError(ctx, w, "failed to open resume", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read resume"))
		return nil, "", "", false
	}
	defer f.Close()

	url, err := h.resumes.Save(ctx, f)
	if err != nil {
		if msg, ok := resumeFieldMessage(err); ok {
			req.ResumeURL = ""
			return req, "", msg, true
		}
		h.writeError(ctx, w, "failed to store resume", err)
		return nil, "", "", false
	}
	req.ResumeURL = url
	return req, url, "", true
}

// HandleList handles GET /leads?q=&status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	searchText, statusFilter := q.Get("q"), q.Get("status")

	var (
		leads []*models.Lead
		err   error
	)
	if searchText == "" && statusFilter == "" {
		leads, err = h.service.List(ctx)
	} else {
		leads, err = h.service.Search(ctx, searchText, statusFilter)
	}
	if err != nil {
		h.writeError(ctx, w, "failed to list leads", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromLeads(leads))
}

// HandleGet handles GET /leads/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	lead, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "failed to get lead", err, "lead_id", id)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromLead(lead))
}

// HandleUpdate handles PATCH /leads/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[PatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	lead, err := h.service.Update(ctx, id, req.ToPatch())
	if err != nil {
		h.writeError(ctx, w, "failed to update lead", err, "lead_id", id)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromLead(lead))
}

// HandleMarkReachedOut handles POST /leads/{id}/reached-out.
func (h *Handler) HandleMarkReachedOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	lead, err := h.service.MarkReachedOut(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "failed to mark lead reached out", err, "lead_id", id)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromLead(lead))
}

// writeError logs client errors at warn and everything else at error, then
// writes the envelope.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	level := slog.LevelError
	if de, ok := dErrors.As(err); ok && httputil.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	h.logger.Log(ctx, level, msg, args...)
	httputil.WriteError(w, err)
}
