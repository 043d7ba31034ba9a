package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments are the gateway's counters and histograms.
type Instruments struct {
	backendCalls    metric.Int64Counter
	backendDuration metric.Float64Histogram
	flowEvents      metric.Int64Counter
}

// NewInstruments registers the gateway instruments on mp. A nil provider records nothing.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	calls, err := m.Int64Counter("gateway.backend.calls",
		metric.WithDescription("Brokerage backend calls by operation and outcome"))
	if err != nil {
		return nil, err
	}
	dur, err := m.Float64Histogram("gateway.backend.duration",
		metric.WithDescription("Brokerage backend call latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	flows, err := m.Int64Counter("gateway.flow.events",
		metric.WithDescription("Onboarding flow events by type"))
	if err != nil {
		return nil, err
	}
	return &Instruments{backendCalls: calls, backendDuration: dur, flowEvents: flows}, nil
}

// BackendCall records one backend call. outcome is ok, failed, session_expired or transport.
func (i *Instruments) BackendCall(ctx context.Context, op, outcome string, seconds float64) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	i.backendCalls.Add(ctx, 1, attrs)
	i.backendDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("op", op)))
}

// FlowEvent counts one reducer event applied to a flow.
func (i *Instruments) FlowEvent(ctx context.Context, event, kind string) {
	if i == nil {
		return
	}
	i.flowEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event), attribute.String("kind", kind)))
}
