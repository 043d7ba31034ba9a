package domain

import (
	"fmt"
	"time"
)

// Event is an input to Reduce.
type Event interface {
	eventName() string
}

// DraftChanged replaces the credential draft.
type DraftChanged struct{ Draft Draft }

// IdentityChecked is the outcome of the PAN/name/DOB plausibility check for draft DraftVersion.
type IdentityChecked struct {
	DraftVersion int
	OK           bool
	Message      string
}

// OTPSent records a successful send. SentAt is when the send was issued; zero means now.
// A non-zero DraftVersion must match the flow's.
type OTPSent struct {
	Channel      Channel
	RequestID    string
	SentAt       time.Time
	DraftVersion int
}

// OTPRejected records a verification the backend refused. A non-empty RequestID must match the challenge.
type OTPRejected struct {
	Channel   Channel
	RequestID string
	Message   string
}

// OTPVerified marks ch verified. A non-empty RequestID must match the challenge.
type OTPVerified struct {
	Channel   Channel
	RequestID string
}

// AccountExists converts a sign-up flow into a sign-in flow after a mobile send hit an existing account.
type AccountExists struct {
	RequestID    string
	SentAt       time.Time
	DraftVersion int
}

// SubmitStarted marks a submit in flight.
type SubmitStarted struct{}

// SubmitFailed ends an in-flight submit with a notice. The flow stays Ready.
type SubmitFailed struct{ Message string }

// SignedIn records the session bootstrap result.
type SignedIn struct{ Bootstrap Bootstrap }

// RemoteFailed records a failed remote call. Only the notice changes.
type RemoteFailed struct{ Message string }

func (DraftChanged) eventName() string    { return "draft_changed" }
func (IdentityChecked) eventName() string { return "identity_checked" }
func (OTPSent) eventName() string         { return "otp_sent" }
func (OTPRejected) eventName() string     { return "otp_rejected" }
func (OTPVerified) eventName() string     { return "otp_verified" }
func (AccountExists) eventName() string   { return "account_exists" }
func (SubmitStarted) eventName() string   { return "submit_started" }
func (SubmitFailed) eventName() string    { return "submit_failed" }
func (SignedIn) eventName() string        { return "signed_in" }
func (RemoteFailed) eventName() string    { return "remote_failed" }

// EventName returns the snake_case name of ev, used in logs and telemetry.
func EventName(ev Event) string { return ev.eventName() }

// AccountExistsNotice is shown after a sign-up is converted into a sign-in.
const AccountExistsNotice = "An account already exists for this PAN. Continue by signing in."

// Reduce applies ev to f and returns the new flow. f is never modified. A rejected event returns f
// unchanged together with the reason.
func Reduce(f *Flow, ev Event, now time.Time) (*Flow, error) {
	if f.Phase == PhaseSignedIn {
		return f, ErrSignedIn
	}
	n := f.clone()
	var err error
	switch e := ev.(type) {
	case DraftChanged:
		if n.Submitting {
			err = ErrSubmitInProgress
			break
		}
		n.applyDraft(e.Draft.Normalize())
	case IdentityChecked:
		err = n.applyIdentity(e)
	case OTPSent:
		err = n.applySent(e, now)
	case OTPRejected:
		if err = n.checkChallenge(e.Channel, e.RequestID); err != nil {
			break
		}
		n.setFieldError(OTPField(e.Channel), orDefault(e.Message, "incorrect OTP"))
	case OTPVerified:
		if err = n.checkChallenge(e.Channel, e.RequestID); err != nil {
			break
		}
		c := n.Challenges[e.Channel]
		c.Verified = true
		n.Challenges[e.Channel] = c
		delete(n.FieldErrors, OTPField(e.Channel))
		n.Notice = ""
	case AccountExists:
		err = n.applyAccountExists(e, now)
	case SubmitStarted:
		err = n.CheckSubmit()
		if err == nil {
			n.Submitting = true
			n.Notice = ""
		}
	case SubmitFailed:
		n.Submitting = false
		n.Notice = orDefault(e.Message, "sign in failed, please try again")
	case SignedIn:
		if !n.Submitting {
			err = fmt.Errorf("%w: no submit in progress", ErrNotReady)
			break
		}
		b := e.Bootstrap
		n.Bootstrap = &b
		n.Submitting = false
		n.Phase = PhaseSignedIn
		n.Draft = Draft{}
		n.Challenges = make(map[Channel]Challenge)
		n.FieldErrors = nil
		n.Notice = ""
	case RemoteFailed:
		n.Notice = orDefault(e.Message, "request could not be completed")
	default:
		err = fmt.Errorf("unknown event %T", ev)
	}
	if err != nil {
		return f, err
	}
	n.settle()
	n.UpdatedAt = now
	return n, nil
}

func (f *Flow) applyDraft(d Draft) {
	old := f.Draft
	f.Draft = d
	f.DraftVersion++
	if old.PAN != d.PAN || (f.Kind == KindSignUp && (old.ClientName != d.ClientName || old.DOB != d.DOB)) {
		// Challenges are bound to the PAN, and sign-up challenges to the checked identity.
		f.Challenges = make(map[Channel]Challenge)
		f.Phase = PhaseIdle
		f.Notice = ""
		f.FieldErrors = nil
		return
	}
	for _, ch := range []Channel{ChannelMobile, ChannelEmail} {
		if c, ok := f.Challenges[ch]; ok && c.Target != d.target(ch) {
			delete(f.Challenges, ch)
			delete(f.FieldErrors, OTPField(ch))
		}
	}
	// A sign-up email challenge is only valid behind a verified mobile.
	if _, ok := f.Challenges[ChannelMobile]; !ok && f.Kind == KindSignUp {
		delete(f.Challenges, ChannelEmail)
		delete(f.FieldErrors, OTPField(ChannelEmail))
	}
}

func (f *Flow) applyIdentity(e IdentityChecked) error {
	if f.Kind != KindSignUp {
		return ErrWrongKind
	}
	if e.DraftVersion != f.DraftVersion {
		return ErrStaleResult
	}
	if !e.OK {
		f.Phase = PhaseIdle
		f.Challenges = make(map[Channel]Challenge)
		f.Notice = orDefault(e.Message, "PAN, name and date of birth could not be verified")
		return nil
	}
	if f.Phase == PhaseIdle {
		f.Phase = PhasePanDobChecked
	}
	f.Notice = ""
	return nil
}

func (f *Flow) checkChallenge(ch Channel, requestID string) error {
	if !f.AwaitingVerification(ch) {
		return ErrNoChallenge
	}
	if requestID != "" && f.Challenges[ch].RequestID != requestID {
		return ErrStaleResult
	}
	return nil
}

func (f *Flow) applySent(e OTPSent, now time.Time) error {
	if e.DraftVersion != 0 && e.DraftVersion != f.DraftVersion {
		return ErrStaleResult
	}
	if e.Channel != ChannelMobile && e.Channel != ChannelEmail {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, e.Channel)
	}
	if f.Verified(e.Channel) {
		return ErrChannelVerified
	}
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	f.Challenges[e.Channel] = Challenge{
		RequestID: e.RequestID,
		PAN:       f.Draft.PAN,
		Channel:   e.Channel,
		Purpose:   f.Kind,
		Target:    f.Draft.target(e.Channel),
		SentAt:    sentAt,
	}
	delete(f.FieldErrors, OTPField(e.Channel))
	f.Notice = ""
	return nil
}

func (f *Flow) applyAccountExists(e AccountExists, now time.Time) error {
	if f.Kind != KindSignUp {
		return ErrWrongKind
	}
	if e.DraftVersion != 0 && e.DraftVersion != f.DraftVersion {
		return ErrStaleResult
	}
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	f.Kind = KindSignIn
	f.Draft = Draft{PAN: f.Draft.PAN, Mobile: f.Draft.Mobile}
	f.DraftVersion++
	f.Challenges = make(map[Channel]Challenge)
	f.FieldErrors = nil
	f.Phase = PhaseIdle
	if e.RequestID != "" {
		f.Challenges[ChannelMobile] = Challenge{
			RequestID: e.RequestID,
			PAN:       f.Draft.PAN,
			Channel:   ChannelMobile,
			Purpose:   KindSignIn,
			Target:    f.Draft.Mobile,
			SentAt:    sentAt,
		}
	}
	f.Notice = AccountExistsNotice
	return nil
}

// settle derives the phase from the challenges. The sign-up identity check survives as the floor.
func (f *Flow) settle() {
	if f.Phase == PhaseSignedIn {
		return
	}
	floor := PhaseIdle
	if f.Kind == KindSignUp && f.Phase >= PhasePanDobChecked {
		floor = PhasePanDobChecked
	}
	allVerified := true
	for _, ch := range f.RequiredChannels() {
		if !f.Verified(ch) {
			allVerified = false
		}
	}
	pending, verified := false, false
	for _, c := range f.Challenges {
		if c.Verified {
			verified = true
		} else {
			pending = true
		}
	}
	switch {
	case allVerified:
		f.Phase = PhaseReady
	case pending:
		f.Phase = PhaseOtpSent
	case verified:
		f.Phase = PhaseOtpVerified
	default:
		f.Phase = floor
	}
}

func (f *Flow) setFieldError(field, msg string) {
	if f.FieldErrors == nil {
		f.FieldErrors = FieldErrors{}
	}
	f.FieldErrors[field] = msg
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
