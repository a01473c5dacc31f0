package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"leadtriage/internal/leads/models"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/sentinel"
)

// leadStore is the surface every backend offers.
type leadStore interface {
	Create(ctx context.Context, lead *models.Lead) error
	List(ctx context.Context) ([]*models.Lead, error)
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error)
	Health(ctx context.Context) error
}

// contractSuite exercises the behaviour shared by all backends. Backend
// suites embed it and set store in SetupTest.
type contractSuite struct {
	suite.Suite
	ctx   context.Context
	store leadStore
}

func newTestLead(first string) *models.Lead {
	lead, err := models.NewLead(uuid.NewString(), models.Intake{
		FirstName:            first,
		LastName:             "Lee",
		Email:                first + "@x.com",
		LinkedInProfile:      "https://linkedin.com/in/" + first,
		CountryOfCitizenship: "US",
		VisasOfInterest:      []string{"H1B", "O1"},
		ResumeURL:            "/resumes/" + first + ".pdf",
	}, time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC))
	if err != nil {
		panic(err)
	}
	return lead
}

func (s *contractSuite) TestCreateAndFind() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))

	found, err := s.store.FindByID(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal(lead.ID, found.ID)
	s.Equal(lead.VisasOfInterest, found.VisasOfInterest)
	s.Equal(models.StatusPending, found.Status)
	s.True(lead.SubmittedAt.Equal(found.SubmittedAt))
}

func (s *contractSuite) TestCreateRejectsDuplicateID() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))
	s.ErrorIs(s.store.Create(s.ctx, lead), sentinel.ErrConflict)
}

func (s *contractSuite) TestFindUnknownID() {
	_, err := s.store.FindByID(s.ctx, "zzz")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestListKeepsInsertionOrder() {
	empty, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(empty)

	names := []string{"Ana", "Ben", "Cho", "Dee"}
	for _, n := range names {
		s.Require().NoError(s.store.Create(s.ctx, newTestLead(n)))
	}
	leads, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(leads, len(names))
	for i, n := range names {
		s.Equal(n, leads[i].FirstName)
	}
}

func (s *contractSuite) TestReturnedRecordsAreCopies() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))
	lead.FirstName = "Mutated"

	found, err := s.store.FindByID(s.ctx, lead.ID)
	s.Require().NoError(err)
	found.VisasOfInterest[0] = "EB1A"

	again, err := s.store.FindByID(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal("Ana", again.FirstName)
	s.Equal("H1B", again.VisasOfInterest[0])
}

func (s *contractSuite) TestExecuteAppliesMutation() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))

	updated, err := s.store.Execute(s.ctx, lead.ID,
		func(l *models.Lead) error { return l.CanTransitionTo(models.StatusReachedOut) },
		func(l *models.Lead) { l.ApplyStatus(models.StatusReachedOut) },
	)
	s.Require().NoError(err)
	s.Equal(models.StatusReachedOut, updated.Status)

	found, err := s.store.FindByID(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusReachedOut, found.Status)
}

func (s *contractSuite) TestExecuteValidationFailureWritesNothing() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))

	rejected := dErrors.New(dErrors.CodeInvalidTransition, "nope")
	_, err := s.store.Execute(s.ctx, lead.ID,
		func(*models.Lead) error { return rejected },
		func(l *models.Lead) { l.FirstName = "Never" },
	)
	s.ErrorIs(err, rejected)

	found, err := s.store.FindByID(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal("Ana", found.FirstName)
}

func (s *contractSuite) TestExecuteCannotChangeIdentity() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))

	updated, err := s.store.Execute(s.ctx, lead.ID,
		func(*models.Lead) error { return nil },
		func(l *models.Lead) {
			l.ID = "hijacked"
			l.SubmittedAt = time.Unix(0, 0)
			l.AdditionalInfo = "note"
		},
	)
	s.Require().NoError(err)
	s.Equal(lead.ID, updated.ID)
	s.True(lead.SubmittedAt.Equal(updated.SubmittedAt))
	s.Equal("note", updated.AdditionalInfo)

	_, err = s.store.FindByID(s.ctx, "hijacked")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestExecuteUnknownID() {
	s.Require().NoError(s.store.Create(s.ctx, newTestLead("Ana")))

	_, err := s.store.Execute(s.ctx, "zzz",
		func(*models.Lead) error { return nil },
		func(*models.Lead) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)

	leads, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(leads, 1)
}

// TestConcurrentTransitionsSucceedOnce checks that racing PENDING -> REACHED_OUT
// updates are serialized: exactly one sees PENDING.
func (s *contractSuite) TestConcurrentTransitionsSucceedOnce() {
	lead := newTestLead("Ana")
	s.Require().NoError(s.store.Create(s.ctx, lead))

	const goroutines = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		failed  []error
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(s.ctx, lead.ID,
				func(l *models.Lead) error {
					if l.IsReachedOut() {
						return errAlreadyReachedOut
					}
					return nil
				},
				func(l *models.Lead) { l.ApplyStatus(models.StatusReachedOut) },
			)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, errAlreadyReachedOut), errors.Is(err, sentinel.ErrConflict):
			default:
				failed = append(failed, err)
			}
		}()
	}
	wg.Wait()

	s.Equal(1, applied)
	s.Empty(failed)
}

var errAlreadyReachedOut = errors.New("already reached out")

func (s *contractSuite) TestHealth() {
	s.NoError(s.store.Health(s.ctx))
}
