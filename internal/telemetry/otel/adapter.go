package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"brokerage-gateway/internal/telemetry"
)

const instrumentationName = "brokerage-gateway/telemetry"

// NewEventEmitter returns an EventEmitter writing events as OTel log records. A nil provider gives a no-op.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// RecordEmitter is the part of otellog.Logger the emitter needs.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitterWithLogger returns an emitter writing to logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	return &logEmitter{logger: logger}
}

type logEmitter struct {
	logger RecordEmitter
}

// Emit converts event into one log record: body is the event type, fields become attributes.
func (e *logEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	var rec otellog.Record
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(event.Type)
	rec.SetBody(otellog.StringValue(event.Type))

	attrs := []otellog.KeyValue{
		otellog.String("event_id", event.ID),
		otellog.String("event_type", event.Type),
	}
	for k, v := range map[string]string{"source": event.Source, "flow_id": event.FlowID, "scope": event.Scope, "client_id": event.ClientID} {
		if v != "" {
			attrs = append(attrs, otellog.String(k, v))
		}
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, otellog.String("attr."+k, v))
	}
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}
