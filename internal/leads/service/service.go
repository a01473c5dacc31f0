package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leadtriage/internal/leads/events"
	"leadtriage/internal/leads/intake"
	leadmetrics "leadtriage/internal/leads/metrics"
	"leadtriage/internal/leads/models"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/sentinel"
	"leadtriage/pkg/requestcontext"
)

const leadNotFoundMessage = "Lead not found"

// Store is the lead record store.
type Store interface {
	Create(ctx context.Context, lead *models.Lead) error
	List(ctx context.Context) ([]*models.Lead, error)
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error)
	Health(ctx context.Context) error
}

// Service orchestrates lead intake, review and the status workflow.
type Service struct {
	store     Store
	validator *intake.Validator
	publisher events.Publisher
	metrics   *leadmetrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	newID     func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *leadmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator replaces uuid.NewString, for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// New constructs a Service.
func New(store Store, validator *intake.Validator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: validator,
		logger:    slog.Default(),
		tracer:    otel.Tracer("leadtriage/internal/leads/service"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger)
	}
	return s
}

// Reference returns the country and visa lists submissions are checked against.
func (s *Service) Reference() *intake.ReferenceData {
	return s.validator.Reference()
}

// Submit validates an intake and stores it as a new PENDING lead stamped
// with the request time.
func (s *Service) Submit(ctx context.Context, in models.Intake) (lead *models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.Submit")
	defer func() { endSpan(span, err) }()
	start := time.Now()

	validated, err := s.validator.Validate(in)
	if err != nil {
		s.incrementValidationFailure(err)
		return nil, err
	}

	lead, err = models.NewLead(s.newID(), *validated, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build lead")
	}
	if err := s.store.Create(ctx, lead); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "lead already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save lead")
	}
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	s.logger.InfoContext(ctx, "lead submitted",
		"request_id", requestcontext.RequestID(ctx),
		"lead_id", lead.ID,
	)
	if s.metrics != nil {
		s.metrics.IncrementSubmitted()
		s.metrics.ObserveSubmit(start)
	}
	s.publish(ctx, events.TypeLeadSubmitted, lead)
	return lead, nil
}

// Validate runs the intake rules without storing anything. Transports use it
// to report field errors alongside problems they detect themselves.
func (s *Service) Validate(ctx context.Context, in models.Intake) error {
	_, span := s.tracer.Start(ctx, "leads.Validate")
	_, err := s.validator.Validate(in)
	endSpan(span, err)
	if err != nil {
		s.incrementValidationFailure(err)
	}
	return err
}

// List returns every lead in submission order.
func (s *Service) List(ctx context.Context) (leads []*models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.List")
	defer func() { endSpan(span, err) }()

	leads, err = s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list leads")
	}
	return leads, nil
}

// Search lists leads matching searchText on name or email and statusFilter
// ("all", empty, or a status in any letter case).
func (s *Service) Search(ctx context.Context, searchText, statusFilter string) (leads []*models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.Search")
	defer func() { endSpan(span, err) }()
	start := time.Now()

	if err := validateStatusFilter(statusFilter); err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list leads")
	}
	leads = models.Filter(all, searchText, statusFilter)
	span.SetAttributes(attribute.Int("leads.matched", len(leads)))
	if s.metrics != nil {
		s.metrics.ObserveList(start)
	}
	return leads, nil
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, id string) (lead *models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.Get", trace.WithAttributes(attribute.String("lead.id", id)))
	defer func() { endSpan(span, err) }()

	lead, err = s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapLeadErr(err, "failed to load lead")
	}
	return lead, nil
}

// Update merges patch into the lead. Patched fields follow the intake rules,
// a status change follows the workflow, and id and submittedAt never change.
// An empty patch returns the lead unchanged.
func (s *Service) Update(ctx context.Context, id string, patch models.Patch) (lead *models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.Update", trace.WithAttributes(attribute.String("lead.id", id)))
	defer func() { endSpan(span, err) }()

	if patch.IsEmpty() {
		lead, err = s.store.FindByID(ctx, id)
		if err != nil {
			return nil, wrapLeadErr(err, "failed to load lead")
		}
		return lead, nil
	}

	// Execute may run the callbacks more than once, so per-attempt results are
	// reset before every validate.
	var (
		merged       *models.Intake
		transitioned bool
	)
	lead, err = s.store.Execute(ctx, id,
		func(l *models.Lead) error {
			merged, transitioned = nil, false
			normalized, err := s.validator.ValidatePatch(l, patch)
			if err != nil {
				return err
			}
			if patch.Status != nil {
				if err := l.CanTransitionTo(*patch.Status); err != nil {
					return err
				}
			}
			merged = normalized
			return nil
		},
		func(l *models.Lead) {
			applyIntake(l, merged)
			if patch.Status != nil && *patch.Status != l.Status {
				l.ApplyStatus(*patch.Status)
				transitioned = true
			}
		},
	)
	if err != nil {
		s.incrementValidationFailure(err)
		return nil, wrapLeadErr(err, "failed to update lead")
	}

	s.logger.InfoContext(ctx, "lead updated",
		"request_id", requestcontext.RequestID(ctx),
		"lead_id", lead.ID,
		"staff", requestcontext.StaffEmail(ctx),
	)
	if transitioned {
		s.recordReachedOut(ctx, lead)
	}
	return lead, nil
}

// MarkReachedOut moves a lead from PENDING to REACHED_OUT. A lead that was
// already reached out is returned unchanged and no event is emitted.
func (s *Service) MarkReachedOut(ctx context.Context, id string) (lead *models.Lead, err error) {
	ctx, span := s.tracer.Start(ctx, "leads.MarkReachedOut", trace.WithAttributes(attribute.String("lead.id", id)))
	defer func() { endSpan(span, err) }()

	transitioned := false
	lead, err = s.store.Execute(ctx, id,
		func(l *models.Lead) error {
			transitioned = false
			return l.CanTransitionTo(models.StatusReachedOut)
		},
		func(l *models.Lead) {
			if !l.IsReachedOut() {
				l.ApplyStatus(models.StatusReachedOut)
				transitioned = true
			}
		},
	)
	if err != nil {
		return nil, wrapLeadErr(err, "failed to update lead")
	}
	span.SetAttributes(attribute.Bool("lead.transitioned", transitioned))

	if transitioned {
		s.logger.InfoContext(ctx, "lead reached out",
			"request_id", requestcontext.RequestID(ctx),
			"lead_id", lead.ID,
			"staff", requestcontext.StaffEmail(ctx),
		)
		s.recordReachedOut(ctx, lead)
	}
	return lead, nil
}

// Health reports whether the store answers.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

func (s *Service) recordReachedOut(ctx context.Context, lead *models.Lead) {
	if s.metrics != nil {
		s.metrics.IncrementReachedOut()
	}
	s.publish(ctx, events.TypeLeadReachedOut, lead)
}

func (s *Service) publish(ctx context.Context, typ events.Type, lead *models.Lead) {
	event := events.Event{
		Type:       typ,
		LeadID:     lead.ID,
		Status:     string(lead.Status),
		Email:      lead.Email,
		Visas:      lead.VisasOfInterest,
		Actor:      requestcontext.StaffEmail(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		OccurredAt: requestcontext.Now(ctx).UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish lead event",
			"event_type", string(typ),
			"lead_id", lead.ID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementEventPublishError()
		}
	}
}

func (s *Service) incrementValidationFailure(err error) {
	if s.metrics != nil && dErrors.HasCode(err, dErrors.CodeValidation) {
		s.metrics.IncrementValidationFailure()
	}
}

func applyIntake(l *models.Lead, in *models.Intake) {
	l.FirstName = in.FirstName
	l.LastName = in.LastName
	l.Email = in.Email
	l.LinkedInProfile = in.LinkedInProfile
	l.CountryOfCitizenship = in.CountryOfCitizenship
	l.VisasOfInterest = in.VisasOfInterest
	l.ResumeURL = in.ResumeURL
	l.AdditionalInfo = in.AdditionalInfo
}

func validateStatusFilter(statusFilter string) error {
	if statusFilter == "" || strings.EqualFold(statusFilter, models.StatusFilterAll) {
		return nil
	}
	if _, err := models.ParseStatus(statusFilter); err != nil {
		return dErrors.New(dErrors.CodeValidation, "status filter must be all, pending or reached_out")
	}
	return nil
}

// wrapLeadErr translates store facts into domain errors. Domain errors
// raised inside Execute callbacks pass through unchanged.
func wrapLeadErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, leadNotFoundMessage)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "lead was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
