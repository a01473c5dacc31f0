// Package events notifies downstream systems about lead outcomes. Publishing
// is best effort: a failed publish never fails the request that caused it.
package events

import (
	"context"
	"time"
)

// Type names a lead event.
type Type string

const (
	TypeLeadSubmitted  Type = "lead.submitted"
	TypeLeadReachedOut Type = "lead.reached_out"
)

// Event is the payload published for a lead outcome.
type Event struct {
	Type       Type      `json:"type"`
	LeadID     string    `json:"leadId"`
	Status     string    `json:"status"`
	Email      string    `json:"email"`
	Visas      []string  `json:"visasOfInterest,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
