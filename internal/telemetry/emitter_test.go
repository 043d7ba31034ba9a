package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		if _, ok := ctx.Deadline(); !ok {
			m.emitErr = errors.New("async emit without deadline")
		}
		close(m.done)
	}
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("kafka down")}
	m := Multi{a, nil, b}

	err := m.Emit(context.Background(), NewEvent(EventSignedIn, "onboarding"))
	if err == nil || err.Error() != "kafka down" {
		t.Errorf("err = %v, want kafka down", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", a.count(), b.count())
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, zap.NewNop(), NewEvent("x", "y"))
	m := &mockEventEmitter{}
	EmitAsync(m, zap.NewNop(), nil)
	if m.count() != 0 {
		t.Error("nil event should not be emitted")
	}
}

func TestEmitAsync_EmitsWithTimeout(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{})}
	EmitAsync(m, zap.NewNop(), NewEvent(EventLogout, "httpapi"))
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async emit did not run")
	}
	if m.emitErr != nil {
		t.Error(m.emitErr)
	}
}

func TestEvent_WithAndPartitionKey(t *testing.T) {
	ev := NewEvent(EventIPOApplied, "ipo")
	if ev.ID == "" || ev.CreatedAt.IsZero() {
		t.Fatalf("NewEvent = %+v", ev)
	}
	ev.With("symbol", "ACME").With("empty", "")
	if ev.Attributes["symbol"] != "ACME" {
		t.Errorf("attributes = %v", ev.Attributes)
	}
	if _, ok := ev.Attributes["empty"]; ok {
		t.Error("empty attribute values should be skipped")
	}
	if ev.PartitionKey() != ev.ID {
		t.Errorf("PartitionKey = %q, want event id", ev.PartitionKey())
	}
	ev.Scope = "scope-1"
	if ev.PartitionKey() != "scope-1" {
		t.Errorf("PartitionKey = %q, want scope", ev.PartitionKey())
	}
	ev.FlowID = "flow-1"
	if ev.PartitionKey() != "flow-1" {
		t.Errorf("PartitionKey = %q, want flow id", ev.PartitionKey())
	}
}
