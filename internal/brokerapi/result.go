package brokerapi

import (
	"errors"
	"fmt"
)

// ErrTransport wraps network failures, unexpected HTTP statuses and undecodable bodies.
// Callers show a generic message and never retry automatically.
var ErrTransport = errors.New("brokerapi: transport failure")

// GenericFailure is the reason used when a failed response carries no message.
const GenericFailure = "request could not be completed"

// Kind tags the outcome of a backend call that reached the backend and was decoded.
type Kind int

const (
	// KindOK means the endpoint-specific success discriminator matched.
	KindOK Kind = iota
	// KindFailed means the response parsed but reported a logical failure.
	KindFailed
	// KindSessionExpired means the backend rejected the caller's session token.
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindFailed:
		return "failed"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one endpoint: Ok(Value), Failed(Reason) or SessionExpired.
type Result[T any] struct {
	Kind   Kind
	Value  T
	Reason string
}

// OK wraps a successful payload.
func OK[T any](v T) Result[T] {
	return Result[T]{Kind: KindOK, Value: v}
}

// Failed returns a logical failure; an empty reason becomes GenericFailure.
func Failed[T any](reason string) Result[T] {
	if reason == "" {
		reason = GenericFailure
	}
	return Result[T]{Kind: KindFailed, Reason: reason}
}

// Expired returns a SessionExpired result.
func Expired[T any]() Result[T] {
	return Result[T]{Kind: KindSessionExpired, Reason: "session expired"}
}

// IsOK reports whether the call succeeded.
func (r Result[T]) IsOK() bool { return r.Kind == KindOK }

// ErrSessionExpired is returned by Result.Err for SessionExpired results.
var ErrSessionExpired = errors.New("brokerapi: session expired")

// FailureError carries the reason of a Failed result.
type FailureError struct {
	Op     string
	Reason string
}

func (e *FailureError) Error() string { return e.Op + ": " + e.Reason }

// Err converts the result into an error for op: nil, *FailureError or ErrSessionExpired.
func (r Result[T]) Err(op string) error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindSessionExpired:
		return fmt.Errorf("%s: %w", op, ErrSessionExpired)
	default:
		return &FailureError{Op: op, Reason: r.Reason}
	}
}

// Reason returns the user-facing reason of a failure error, or "" for other errors.
func Reason(err error) string {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
