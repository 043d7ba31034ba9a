package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"brokerage-gateway/internal/onboarding/domain"
)

// PostgresRepository stores each flow as a JSONB document in onboarding_flows.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a flow repository that uses db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the flow for id, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Flow, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT state FROM onboarding_flows WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var f domain.Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.Challenges == nil {
		f.Challenges = make(map[domain.Channel]domain.Challenge)
	}
	return &f, nil
}

// Save upserts the flow document.
func (r *PostgresRepository) Save(ctx context.Context, f *domain.Flow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO onboarding_flows (id, kind, phase, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind, phase = EXCLUDED.phase, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		f.ID, string(f.Kind), f.Phase.String(), raw, f.CreatedAt, f.UpdatedAt,
	)
	return err
}

// Delete removes the flow.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM onboarding_flows WHERE id = $1`, id)
	return err
}

// Prune deletes flows last updated before before.
func (r *PostgresRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM onboarding_flows WHERE updated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
