package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownKind       = errors.New("unknown flow kind")
	ErrUnknownChannel    = errors.New("unknown otp channel")
	ErrSignedIn          = errors.New("flow already signed in")
	ErrIdentityUnchecked = errors.New("PAN, name and date of birth not verified yet")
	ErrMobileUnverified  = errors.New("verify the mobile number first")
	ErrChannelVerified   = errors.New("channel already verified")
	ErrCooldown          = errors.New("otp resend not available yet")
	ErrNoChallenge       = errors.New("no otp sent on this channel")
	ErrNotReady          = errors.New("required channels not verified")
	ErrSubmitInProgress  = errors.New("submit already in progress")
	ErrWrongKind         = errors.New("event not valid for this flow kind")
	ErrStaleResult       = errors.New("result no longer matches the draft")
)

// ResendRemaining is the countdown left before an OTP on ch may be resent. It is zero when nothing was
// sent, when the channel is verified, or once SentAt+Cooldown is reached.
func (f *Flow) ResendRemaining(ch Channel, now time.Time) time.Duration {
	c, ok := f.Challenges[ch]
	if !ok || c.Verified {
		return 0
	}
	left := c.SentAt.Add(f.Cooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// CheckSend returns why an OTP cannot be sent on ch, or nil.
func (f *Flow) CheckSend(ch Channel, now time.Time) error {
	if ch != ChannelMobile && ch != ChannelEmail {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	if f.Phase == PhaseSignedIn {
		return ErrSignedIn
	}
	if f.Kind == KindSignIn && ch == ChannelEmail {
		return fmt.Errorf("%w: sign-in verifies the mobile number only", ErrWrongKind)
	}
	if err := f.Draft.ValidateTarget(ch).Err(); err != nil {
		return err
	}
	if f.Kind == KindSignUp && f.Phase < PhasePanDobChecked {
		return ErrIdentityUnchecked
	}
	if f.Kind == KindSignUp && ch == ChannelEmail && !f.Verified(ChannelMobile) {
		return ErrMobileUnverified
	}
	if f.Verified(ch) {
		return ErrChannelVerified
	}
	if left := f.ResendRemaining(ch, now); left > 0 {
		return fmt.Errorf("%w: %ds remaining", ErrCooldown, int((left+time.Second-1)/time.Second))
	}
	return nil
}

// CanSendOTP reports whether an OTP may be sent on ch now.
func (f *Flow) CanSendOTP(ch Channel, now time.Time) bool {
	return f.CheckSend(ch, now) == nil
}

// CheckVerify returns why code cannot be verified on ch, or nil. A malformed code is a FieldErrors.
func (f *Flow) CheckVerify(ch Channel, code string) error {
	if f.Phase == PhaseSignedIn {
		return ErrSignedIn
	}
	c, ok := f.Challenges[ch]
	if !ok {
		return ErrNoChallenge
	}
	if c.Verified {
		return ErrChannelVerified
	}
	if !ValidOTP(code) {
		return FieldErrors{OTPField(ch): "enter the 6 digit OTP"}
	}
	return nil
}

// CanVerifyOTP reports whether code may be sent for verification on ch.
func (f *Flow) CanVerifyOTP(ch Channel, code string) bool {
	return f.CheckVerify(ch, code) == nil
}

// CheckSubmit returns why the flow cannot be submitted, or nil.
func (f *Flow) CheckSubmit() error {
	if f.Phase == PhaseSignedIn {
		return ErrSignedIn
	}
	if f.Submitting {
		return ErrSubmitInProgress
	}
	if f.Phase != PhaseReady {
		return ErrNotReady
	}
	return nil
}

// CanSubmit reports whether every required channel is verified and no submit is running.
func (f *Flow) CanSubmit() bool {
	return f.CheckSubmit() == nil
}

// AwaitingVerification reports whether ch has an unverified challenge.
func (f *Flow) AwaitingVerification(ch Channel) bool {
	c, ok := f.Challenges[ch]
	return ok && !c.Verified
}
