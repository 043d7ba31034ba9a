package repository

import (
	"context"
	"time"

	"brokerage-gateway/internal/onboarding/domain"
)

// Repository defines persistence for onboarding flows.
type Repository interface {
	// Get returns the flow for id, or nil if not found.
	Get(ctx context.Context, id string) (*domain.Flow, error)
	// Save creates or replaces the flow.
	Save(ctx context.Context, f *domain.Flow) error
	Delete(ctx context.Context, id string) error
	// Prune deletes flows not updated since before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
