package models

import (
	"slices"
	"strings"
	"time"

	dErrors "leadtriage/pkg/domain-errors"
)

// Status is the triage state of a lead.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReachedOut Status = "REACHED_OUT"
)

// ParseStatus accepts a status in any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid status: "+s)
	}
	return st, nil
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusReachedOut
}

// CanTransitionTo reports whether moving from s to next is allowed. Staying in
// the same state is allowed and is a no-op; the only real move is
// PENDING -> REACHED_OUT.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return next.IsValid()
	}
	return s == StatusPending && next == StatusReachedOut
}

func (s Status) String() string {
	return string(s)
}

// Lead is a prospective client's submitted application.
//
// Invariants:
//   - ID is assigned once at creation and never changes
//   - SubmittedAt is set once at creation and never changes
//   - Status starts PENDING and only ever moves to REACHED_OUT
//   - VisasOfInterest is never empty
type Lead struct {
	ID                   string    `json:"id"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	Email                string    `json:"email"`
	LinkedInProfile      string    `json:"linkedinProfile"`
	CountryOfCitizenship string    `json:"countryOfCitizenship"`
	VisasOfInterest      []string  `json:"visasOfInterest"`
	ResumeURL            string    `json:"resumeUrl"`
	AdditionalInfo       string    `json:"additionalInfo,omitempty"`
	Status               Status    `json:"status"`
	SubmittedAt          time.Time `json:"submittedAt"`
}

// Intake is a validated submission, ready to become a Lead.
type Intake struct {
	FirstName            string
	LastName             string
	Email                string
	LinkedInProfile      string
	CountryOfCitizenship string
	VisasOfInterest      []string
	ResumeURL            string
	AdditionalInfo       string
}

// NewLead builds a PENDING lead from a validated intake. SubmittedAt keeps
// millisecond precision so it survives every store backend unchanged.
func NewLead(id string, in Intake, now time.Time) (*Lead, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lead id cannot be empty")
	}
	if len(in.VisasOfInterest) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lead must have at least one visa of interest")
	}
	return &Lead{
		ID:                   id,
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		Email:                in.Email,
		LinkedInProfile:      in.LinkedInProfile,
		CountryOfCitizenship: in.CountryOfCitizenship,
		VisasOfInterest:      slices.Clone(in.VisasOfInterest),
		ResumeURL:            in.ResumeURL,
		AdditionalInfo:       in.AdditionalInfo,
		Status:               StatusPending,
		SubmittedAt:          now.UTC().Truncate(time.Millisecond),
	}, nil
}

// Clone returns a deep copy so callers never share state with a store.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	c.VisasOfInterest = slices.Clone(l.VisasOfInterest)
	return &c
}

// CanTransitionTo checks if the lead may move to next.
// Use with ApplyStatus in Execute callbacks.
func (l *Lead) CanTransitionTo(next Status) error {
	if !next.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status: "+string(next))
	}
	if !l.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot move lead from "+string(l.Status)+" to "+string(next))
	}
	return nil
}

// ApplyStatus sets the status. Call CanTransitionTo first.
func (l *Lead) ApplyStatus(next Status) {
	l.Status = next
}

// IsReachedOut reports whether staff already contacted the lead.
func (l *Lead) IsReachedOut() bool {
	return l.Status == StatusReachedOut
}
