// Package repository stores gateway events in Postgres for support lookups.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"brokerage-gateway/internal/telemetry"
)

// PostgresRepository writes events to gateway_events. It implements telemetry.EventEmitter.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an event repository that uses db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Emit persists the event. Attributes go into the JSONB metadata column.
func (r *PostgresRepository) Emit(ctx context.Context, e *telemetry.Event) error {
	if e == nil {
		return nil
	}
	meta, err := json.Marshal(e.Attributes)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO gateway_events (id, event_type, source, flow_id, scope, client_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, e.Source, nullString(e.FlowID), nullString(e.Scope), nullString(e.ClientID), meta, e.CreatedAt,
	)
	return err
}

// ListByFlow returns the events of one flow, oldest first.
func (r *PostgresRepository) ListByFlow(ctx context.Context, flowID string, limit int32) ([]*telemetry.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, source, flow_id, scope, client_id, metadata, created_at
		FROM gateway_events WHERE flow_id = $1 ORDER BY created_at LIMIT $2`, flowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*telemetry.Event
	for rows.Next() {
		var (
			e                     telemetry.Event
			flow, scope, clientID sql.NullString
			meta                  []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &flow, &scope, &clientID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FlowID, e.Scope, e.ClientID = flow.String, scope.String, clientID.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Attributes); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
