package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"brokerage-gateway/internal/telemetry"
)

// recordCapture stores the last Record passed to Emit.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) { r.rec = rec }

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), telemetry.NewEvent("x", "y")); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestNewEventEmitter_SDKProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.NewEvent(telemetry.EventSignedIn, "test")); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_AttributeMapping(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	ev := telemetry.NewEvent(telemetry.EventOTPSent, "onboarding")
	ev.FlowID = "flow-1"
	ev.With("channel", "mobile")

	if err := em.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec
	if rec.Body().AsString() != telemetry.EventOTPSent {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	if !rec.Timestamp().Equal(ev.CreatedAt) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), ev.CreatedAt)
	}
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event_id": ev.ID, "event_type": telemetry.EventOTPSent, "source": "onboarding",
		"flow_id": "flow-1", "attr.channel": "mobile",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["scope"]; ok {
		t.Error("empty fields should not become attributes")
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &telemetry.Event{Type: "ping"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if ts := cap.rec.Timestamp(); ts.Before(before) {
		t.Errorf("timestamp = %v, want >= %v", ts, before)
	}
}

func TestInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(mp)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	ctx := context.Background()
	inst.BackendCall(ctx, "generate_otp", "ok", 0.12)
	inst.BackendCall(ctx, "generate_otp", "failed", 0.2)
	inst.FlowEvent(ctx, "otp_sent", "SignIn")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, n := range []string{"gateway.backend.calls", "gateway.backend.duration", "gateway.flow.events"} {
		if !names[n] {
			t.Errorf("metric %q not recorded", n)
		}
	}

	var nilInst *Instruments
	nilInst.BackendCall(ctx, "x", "ok", 0)
	nilInst.FlowEvent(ctx, "x", "y")
}
