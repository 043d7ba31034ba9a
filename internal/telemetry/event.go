package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the gateway.
const (
	EventFlowStarted       = "flow_started"
	EventFlowAbandoned     = "flow_abandoned"
	EventIdentityChecked   = "identity_checked"
	EventOTPSent           = "otp_sent"
	EventOTPVerified       = "otp_verified"
	EventOTPRejected       = "otp_rejected"
	EventAccountExists     = "account_exists"
	EventSignedIn          = "signed_in"
	EventSubmitFailed      = "submit_failed"
	EventLogout            = "logout"
	EventSessionExpired    = "session_expired"
	EventIPOApplied        = "ipo_applied"
	EventKYCBankCompleted  = "kyc_bank_completed"
	EventKYCBankFailed     = "kyc_bank_failed"
	EventTradeReportExport = "trade_report_exported"
)

// Event is a best-effort gateway event. PII never goes into Attributes unmasked.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"eventType"`
	Source     string            `json:"source"`
	FlowID     string            `json:"flowId,omitempty"`
	Scope      string            `json:"scope,omitempty"`
	ClientID   string            `json:"clientId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(eventType, source string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// With sets an attribute and returns e. Empty values are skipped.
func (e *Event) With(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// PartitionKey groups a flow's or a session's events on one Kafka partition.
func (e *Event) PartitionKey() string {
	switch {
	case e.FlowID != "":
		return e.FlowID
	case e.Scope != "":
		return e.Scope
	default:
		return e.ID
	}
}
