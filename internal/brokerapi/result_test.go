package brokerapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestResultErr(t *testing.T) {
	if err := OK(1).Err("op"); err != nil {
		t.Errorf("OK.Err = %v, want nil", err)
	}
	err := Failed[int]("PAN not found").Err("check_identity")
	if Reason(err) != "PAN not found" {
		t.Errorf("Reason = %q", Reason(err))
	}
	if err.Error() != "check_identity: PAN not found" {
		t.Errorf("Error = %q", err.Error())
	}
	wrapped := fmt.Errorf("kyc: %w", err)
	if Reason(wrapped) != "PAN not found" {
		t.Error("Reason should see through wrapping")
	}
	if err := Expired[int]().Err("save_bank"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expired.Err = %v, want ErrSessionExpired", err)
	}
	if Reason(errors.New("x")) != "" {
		t.Error("Reason of a plain error should be empty")
	}
}

func TestFailed_GenericFallback(t *testing.T) {
	if r := Failed[string](""); r.Reason != GenericFailure {
		t.Errorf("Reason = %q, want %q", r.Reason, GenericFailure)
	}
	if Kind(42).String() != "unknown" || KindSessionExpired.String() != "session_expired" {
		t.Error("Kind.String mismatch")
	}
}
