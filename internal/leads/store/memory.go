package store

import (
	"context"
	"fmt"
	"sync"

	"leadtriage/internal/leads/models"
	"leadtriage/pkg/platform/sentinel"
)

// InMemory keeps leads in process memory. Records are lost on restart.
type InMemory struct {
	mu    sync.RWMutex
	order []string
	leads map[string]*models.Lead
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		leads: make(map[string]*models.Lead),
	}
}

func (s *InMemory) Create(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[lead.ID]; exists {
		return fmt.Errorf("lead %s: %w", lead.ID, sentinel.ErrConflict)
	}
	s.leads[lead.ID] = lead.Clone()
	s.order = append(s.order, lead.ID)
	return nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Lead, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.leads[id].Clone())
	}
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return lead.Clone(), nil
}

// Execute validates and mutates a lead while holding the write lock.
func (s *InMemory) Execute(_ context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leads[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	protectImmutable(current, working)

	s.leads[id] = working
	return working.Clone(), nil
}

// Health always succeeds.
func (s *InMemory) Health(_ context.Context) error {
	return nil
}
