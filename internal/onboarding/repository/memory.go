// Package repository persists onboarding flows in memory or Postgres.
package repository

import (
	"context"
	"sync"
	"time"

	"brokerage-gateway/internal/onboarding/domain"
)

// MemoryRepository keeps flows in a map. Stored flows are treated as immutable: Reduce always
// returns a new value.
type MemoryRepository struct {
	mu    sync.RWMutex
	flows map[string]*domain.Flow
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{flows: make(map[string]*domain.Flow)}
}

// Get returns the flow for id, or nil if not found.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flows[id], nil
}

// Save stores f under f.ID.
func (r *MemoryRepository) Save(ctx context.Context, f *domain.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[f.ID] = f
	return nil
}

// Delete removes the flow.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, id)
	return nil
}

// Prune removes flows last updated before before.
func (r *MemoryRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, f := range r.flows {
		if f.UpdatedAt.Before(before) {
			delete(r.flows, id)
			n++
		}
	}
	return n, nil
}
