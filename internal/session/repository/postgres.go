package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"brokerage-gateway/internal/session"
)

// PostgresStore is a session.Store backed by the session_entries table.
type PostgresStore struct {
	db   *sql.DB
	ttl  time.Duration
	nowF func() time.Time
}

// NewPostgresStore returns a store that uses db. ttl <= 0 uses DefaultTTL.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{db: db, ttl: ttl, nowF: func() time.Time { return time.Now().UTC() }}
}

// Get returns the value for key in scope, or ok=false if missing or expired.
func (s *PostgresStore) Get(ctx context.Context, scope string, key session.Key) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_entries WHERE scope = $1 AND key = $2 AND expires_at > $3`,
		scope, string(key), s.nowF(),
	).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Set upserts value. A new key inherits the expiry of the scope's existing live entries.
func (s *PostgresStore) Set(ctx context.Context, scope string, key session.Key, value string) error {
	if !key.Valid() {
		return session.ErrUnknownKey
	}
	now := s.nowF()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_entries (scope, key, value, expires_at, updated_at)
		VALUES ($1, $2, $3,
			COALESCE((SELECT MIN(expires_at) FROM session_entries WHERE scope = $1 AND expires_at > $4), $5),
			$4)
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		scope, string(key), value, now, now.Add(s.ttl),
	)
	return err
}

// Clear deletes every entry in scope.
func (s *PostgresStore) Clear(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE scope = $1`, scope)
	return err
}

// Values returns all live entries in scope.
func (s *PostgresStore) Values(ctx context.Context, scope string) (map[session.Key]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM session_entries WHERE scope = $1 AND expires_at > $2`, scope, s.nowF())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[session.Key]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[session.Key(k)] = v
	}
	return out, rows.Err()
}

// DeleteExpired removes expired entries and returns how many were deleted.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE expires_at <= $1`, s.nowF())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
