// Package repository provides session.Store implementations.
package repository

import (
	"context"
	"sync"
	"time"

	"brokerage-gateway/internal/session"
)

// DefaultTTL is the scope lifetime when none is configured.
const DefaultTTL = 12 * time.Hour

type scopeEntry struct {
	values    map[session.Key]string
	expiresAt time.Time
}

// MemoryStore is an in-memory session.Store. Scopes expire TTL after their first Set.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]*scopeEntry
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryStore returns an in-memory store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		m:    make(map[string]*scopeEntry),
		ttl:  ttl,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the value for key in scope if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, scope string, key session.Key) (string, bool, error) {
	e := s.live(scope)
	if e == nil {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := e.values[key]
	return v, ok, nil
}

// Set stores value for key in scope.
func (s *MemoryStore) Set(ctx context.Context, scope string, key session.Key, value string) error {
	if !key.Valid() {
		return session.ErrUnknownKey
	}
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[scope]
	if !ok || !e.expiresAt.After(now) {
		e = &scopeEntry{values: make(map[session.Key]string), expiresAt: now.Add(s.ttl)}
		s.m[scope] = e
	}
	e.values[key] = value
	return nil
}

// Clear removes scope.
func (s *MemoryStore) Clear(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, scope)
	return nil
}

// Values returns a copy of the live values in scope.
func (s *MemoryStore) Values(ctx context.Context, scope string) (map[session.Key]string, error) {
	out := make(map[session.Key]string)
	e := s.live(scope)
	if e == nil {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range e.values {
		out[k] = v
	}
	return out, nil
}

// live returns the scope entry, deleting it when expired.
func (s *MemoryStore) live(scope string) *scopeEntry {
	s.mu.RLock()
	e, ok := s.m[scope]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		if cur, ok := s.m[scope]; ok && cur == e {
			delete(s.m, scope)
		}
		s.mu.Unlock()
		return nil
	}
	return e
}

// DeleteExpired drops every expired scope.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for scope, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, scope)
			n++
		}
	}
	return n, nil
}
