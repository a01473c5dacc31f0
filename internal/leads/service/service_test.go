package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"leadtriage/internal/leads/events"
	"leadtriage/internal/leads/intake"
	leadmetrics "leadtriage/internal/leads/metrics"
	"leadtriage/internal/leads/models"
	"leadtriage/internal/leads/store"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/requestcontext"
)

// =============================================================================
// Lead Service Test Suite
// =============================================================================
// Runs the service against the in-memory store so the workflow rules, error
// translation and event emission are exercised end to end below the transport.

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type LeadServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *store.InMemory
	publisher *recordingPublisher
	metrics   *leadmetrics.Metrics
	service   *Service
	nextID    int
}

func TestLeadServiceSuite(t *testing.T) {
	suite.Run(t, new(LeadServiceSuite))
}

func (s *LeadServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.publisher = &recordingPublisher{}
	s.metrics = leadmetrics.New(prometheus.NewRegistry())
	s.nextID = 0
	s.service = New(s.store, intake.NewValidator(nil),
		WithPublisher(s.publisher),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(func() string {
			s.nextID++
			return fmt.Sprintf("lead-%d", s.nextID)
		}),
	)
}

func validIntake(first, last string) models.Intake {
	return models.Intake{
		FirstName:            first,
		LastName:             last,
		Email:                first + "@x.com",
		LinkedInProfile:      "https://linkedin.com/in/" + first,
		CountryOfCitizenship: "US",
		VisasOfInterest:      []string{"H1B"},
		ResumeURL:            "/resumes/" + first + ".pdf",
	}
}

func (s *LeadServiceSuite) submit(first, last string) *models.Lead {
	lead, err := s.service.Submit(s.ctx, validIntake(first, last))
	s.Require().NoError(err)
	return lead
}

// =============================================================================
// Submit Tests
// =============================================================================

func (s *LeadServiceSuite) TestSubmit() {
	s.Run("creates pending lead stamped with request time", func() {
		lead := s.submit("Ana", "Lee")
		s.Equal("lead-1", lead.ID)
		s.Equal(models.StatusPending, lead.Status)
		s.True(s.now.Equal(lead.SubmittedAt))

		stored, err := s.store.FindByID(s.ctx, lead.ID)
		s.Require().NoError(err)
		s.Equal("Ana", stored.FirstName)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.LeadsSubmitted))
		s.Equal([]events.Type{events.TypeLeadSubmitted}, s.publisher.types())
	})

	s.Run("rejects invalid intake without storing", func() {
		in := validIntake("A", "Lee")
		in.VisasOfInterest = nil
		_, err := s.service.Submit(s.ctx, in)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Len(dErrors.FieldErrors(err), 2)

		leads, err := s.service.List(s.ctx)
		s.Require().NoError(err)
		s.Len(leads, 1)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.ValidationFailures))
	})

	s.Run("publish failure does not fail the submission", func() {
		s.publisher.err = errors.New("broker down")
		defer func() { s.publisher.err = nil }()

		_, err := s.service.Submit(s.ctx, validIntake("Ben", "Ray"))
		s.NoError(err)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.EventPublishErrors))
	})
}

// =============================================================================
// List and Search Tests
// =============================================================================

func (s *LeadServiceSuite) TestListAndSearch() {
	s.submit("Iskhak", "Bekov")
	ana := s.submit("Ana", "Lee")
	s.submit("Marco", "Iskander")
	_, err := s.service.MarkReachedOut(s.ctx, ana.ID)
	s.Require().NoError(err)

	s.Run("list keeps submission order", func() {
		leads, err := s.service.List(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(leads, 3)
		s.Equal([]string{"Iskhak", "Ana", "Marco"}, []string{leads[0].FirstName, leads[1].FirstName, leads[2].FirstName})
	})

	s.Run("search matches names case-insensitively", func() {
		leads, err := s.service.Search(s.ctx, "isk", "all")
		s.Require().NoError(err)
		s.Len(leads, 2)
	})

	s.Run("status filter", func() {
		leads, err := s.service.Search(s.ctx, "", "reached_out")
		s.Require().NoError(err)
		s.Require().Len(leads, 1)
		s.Equal(ana.ID, leads[0].ID)
	})

	s.Run("unknown status filter is a validation error", func() {
		_, err := s.service.Search(s.ctx, "", "declined")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Status Workflow Tests
// =============================================================================

func (s *LeadServiceSuite) TestMarkReachedOut() {
	lead := s.submit("Ana", "Lee")

	s.Run("moves pending to reached out", func() {
		updated, err := s.service.MarkReachedOut(s.ctx, lead.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusReachedOut, updated.Status)
		s.Equal(lead.ID, updated.ID)
		s.True(lead.SubmittedAt.Equal(updated.SubmittedAt))
		s.Equal(1.0, promtest.ToFloat64(s.metrics.LeadsReachedOut))
	})

	s.Run("second call is a no-op", func() {
		updated, err := s.service.MarkReachedOut(s.ctx, lead.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusReachedOut, updated.Status)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.LeadsReachedOut))
		s.Equal([]events.Type{events.TypeLeadSubmitted, events.TypeLeadReachedOut}, s.publisher.types())
	})

	s.Run("unknown id is not found", func() {
		_, err := s.service.MarkReachedOut(s.ctx, "zzz")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		de, _ := dErrors.As(err)
		s.Equal("Lead not found", de.Message)
	})
}

// =============================================================================
// Update Tests
// =============================================================================

func (s *LeadServiceSuite) TestUpdate() {
	s.Run("merges fields and keeps identity", func() {
		lead := s.submit("Ana", "Lee")
		info := "  prefers email "
		updated, err := s.service.Update(s.ctx, lead.ID, models.Patch{AdditionalInfo: &info})
		s.Require().NoError(err)
		s.Equal("prefers email", updated.AdditionalInfo)
		s.Equal("Ana", updated.FirstName)
		s.Equal(lead.ID, updated.ID)
		s.True(lead.SubmittedAt.Equal(updated.SubmittedAt))
	})

	s.Run("status patch transitions and emits event", func() {
		lead := s.submit("Ben", "Ray")
		status := models.StatusReachedOut
		updated, err := s.service.Update(s.ctx, lead.ID, models.Patch{Status: &status})
		s.Require().NoError(err)
		s.Equal(models.StatusReachedOut, updated.Status)
		s.Contains(s.publisher.types(), events.TypeLeadReachedOut)
	})

	s.Run("cannot move back to pending", func() {
		lead := s.submit("Cho", "Kim")
		_, err := s.service.MarkReachedOut(s.ctx, lead.ID)
		s.Require().NoError(err)

		pending := models.StatusPending
		name := "Chloe"
		_, err = s.service.Update(s.ctx, lead.ID, models.Patch{Status: &pending, FirstName: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		found, err := s.service.Get(s.ctx, lead.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusReachedOut, found.Status)
		s.Equal("Cho", found.FirstName, "rejected patch writes nothing")
	})

	s.Run("invalid field is rejected", func() {
		lead := s.submit("Dee", "Fox")
		email := "bad"
		_, err := s.service.Update(s.ctx, lead.ID, models.Patch{Email: &email})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty patch returns lead unchanged", func() {
		lead := s.submit("Eve", "Hart")
		got, err := s.service.Update(s.ctx, lead.ID, models.Patch{})
		s.Require().NoError(err)
		s.Equal(lead, got)
	})

	s.Run("unknown id is not found and store untouched", func() {
		before, err := s.service.List(s.ctx)
		s.Require().NoError(err)

		info := "x"
		_, err = s.service.Update(s.ctx, "zzz", models.Patch{AdditionalInfo: &info})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		after, err := s.service.List(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})
}

// =============================================================================
// Seed Tests
// =============================================================================

func (s *LeadServiceSuite) TestSeedDemoLeads() {
	n, err := s.service.SeedDemoLeads(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(len(demoLeads), n)

	n, err = s.service.SeedDemoLeads(s.ctx, s.now)
	s.Require().NoError(err)
	s.Zero(n, "non-empty store is not reseeded")

	reached, err := s.service.Search(s.ctx, "", "REACHED_OUT")
	s.Require().NoError(err)
	s.Len(reached, 2)
}

func (s *LeadServiceSuite) TestDemoLeadsPassValidation() {
	v := intake.NewValidator(nil)
	for _, demo := range demoLeads {
		_, err := v.Validate(demo.intake)
		s.NoError(err, demo.intake.FirstName)

		u, err := url.Parse(demo.intake.ResumeURL)
		s.Require().NoError(err)
		s.Equal("https", u.Scheme, "demo resumes point at an external host, not the upload store")
		s.NotEmpty(u.Host)
	}
}

// retryingStore replays Execute the way the Redis store does after a WATCH
// conflict: the first attempt runs on a copy that is thrown away, another
// writer commits in between, and the callbacks run again on fresh data.
type retryingStore struct {
	*store.InMemory
	interleave func(id string)
}

func (r *retryingStore) Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if validate(current) == nil {
		mutate(current)
	}
	if r.interleave != nil {
		r.interleave(id)
		r.interleave = nil
	}
	return r.InMemory.Execute(ctx, id, validate, mutate)
}

func (s *LeadServiceSuite) TestRetriedTransitionIsReportedOnce() {
	reachedOut := models.StatusReachedOut
	cases := []struct {
		name string
		call func(svc *Service, id string) (*models.Lead, error)
	}{
		{"mark reached out", func(svc *Service, id string) (*models.Lead, error) {
			return svc.MarkReachedOut(s.ctx, id)
		}},
		{"status patch", func(svc *Service, id string) (*models.Lead, error) {
			return svc.Update(s.ctx, id, models.Patch{Status: &reachedOut})
		}},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			inner := store.NewInMemory()
			publisher := &recordingPublisher{}
			m := leadmetrics.New(prometheus.NewRegistry())
			svc := New(&retryingStore{
				InMemory: inner,
				interleave: func(id string) {
					_, err := inner.Execute(s.ctx, id,
						func(*models.Lead) error { return nil },
						func(l *models.Lead) { l.ApplyStatus(models.StatusReachedOut) },
					)
					s.Require().NoError(err)
				},
			}, intake.NewValidator(nil),
				WithPublisher(publisher),
				WithMetrics(m),
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)
			lead, err := svc.Submit(s.ctx, validIntake("Ana", "Lee"))
			s.Require().NoError(err)

			got, err := tc.call(svc, lead.ID)

			s.Require().NoError(err)
			s.Equal(models.StatusReachedOut, got.Status)
			s.Equal([]events.Type{events.TypeLeadSubmitted}, publisher.types())
			s.Equal(0.0, promtest.ToFloat64(m.LeadsReachedOut))
		})
	}
}

func (s *LeadServiceSuite) TestValidate() {
	s.Run("valid intake", func() {
		s.NoError(s.service.Validate(s.ctx, validIntake("Ana", "Lee")))
	})

	s.Run("reports every failing field and stores nothing", func() {
		in := validIntake("A", "Lee")
		in.ResumeURL = ""

		err := s.service.Validate(s.ctx, in)

		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeValidation, de.Code)
		s.Contains(de.Fields, "firstName")
		s.Contains(de.Fields, "resume")
		leads, err := s.service.List(s.ctx)
		s.Require().NoError(err)
		s.Empty(leads)
	})
}
