package domain

import (
	"fmt"
	"time"
)

// Kind is the flow discriminator, sent to the backend as LoginType.
type Kind string

const (
	KindSignIn Kind = "SignIn"
	KindSignUp Kind = "SignUp"
)

// Valid reports whether k is a known flow kind.
func (k Kind) Valid() bool { return k == KindSignIn || k == KindSignUp }

// Channel is an OTP delivery channel.
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelEmail  Channel = "email"
)

// ParseChannel returns the channel named s.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelMobile, ChannelEmail:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// Phase is the position of a flow in the bootstrap state machine. Phases are ordered.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePanDobChecked
	PhaseOtpSent
	PhaseOtpVerified
	PhaseReady
	PhaseSignedIn
)

var phaseNames = [...]string{"idle", "pan_dob_checked", "otp_sent", "otp_verified", "ready", "signed_in"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("invalid phase %q", string(b))
}

// Draft is the credential draft being typed by the user.
type Draft struct {
	PAN        string `json:"pan"`
	Mobile     string `json:"mobile"`
	Email      string `json:"email,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	DOB        string `json:"dob,omitempty"`
}

// Challenge references an OTP issued by the backend for one channel.
type Challenge struct {
	RequestID string    `json:"request_id"`
	PAN       string    `json:"pan"`
	Channel   Channel   `json:"channel"`
	Purpose   Kind      `json:"purpose"`
	Target    string    `json:"target"` // mobile number or e-mail the OTP went to
	SentAt    time.Time `json:"sent_at"`
	Verified  bool      `json:"verified"`
}

// Bootstrap is the session bootstrap result of a successful submit.
type Bootstrap struct {
	SessionID  string `json:"session_id"`
	TradingID  string `json:"trading_id"`
	CustomerID string `json:"customer_id"`
	ClientID   string `json:"client_id"`
	PAN        string `json:"pan"`
	Mobile     string `json:"mobile"`
	Email      string `json:"email,omitempty"`
	DOB        string `json:"dob,omitempty"`
	ClientName string `json:"client_name,omitempty"`
}

// Flow is one sign-in or sign-up attempt. It is only changed through Reduce.
type Flow struct {
	ID           string                `json:"id"`
	Kind         Kind                  `json:"kind"`
	Phase        Phase                 `json:"phase"`
	Draft        Draft                 `json:"draft"`
	DraftVersion int                   `json:"draft_version"`
	Challenges   map[Channel]Challenge `json:"challenges,omitempty"`
	Bootstrap    *Bootstrap            `json:"bootstrap,omitempty"`
	Notice       string                `json:"notice,omitempty"`
	FieldErrors  FieldErrors           `json:"field_errors,omitempty"`
	Submitting   bool                  `json:"submitting"`
	Cooldown     time.Duration         `json:"cooldown"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// DefaultCooldown is the resend countdown after a successful OTP send.
const DefaultCooldown = 60 * time.Second

// NewFlow returns an idle flow. cooldown <= 0 uses DefaultCooldown.
func NewFlow(id string, kind Kind, cooldown time.Duration, now time.Time) (*Flow, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Flow{
		ID:         id,
		Kind:       kind,
		Phase:      PhaseIdle,
		Challenges: make(map[Channel]Challenge),
		Cooldown:   cooldown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RequiredChannels lists the channels that must be verified before submit.
func (f *Flow) RequiredChannels() []Channel {
	if f.Kind == KindSignUp {
		return []Channel{ChannelMobile, ChannelEmail}
	}
	return []Channel{ChannelMobile}
}

// Verified reports whether ch has a verified challenge.
func (f *Flow) Verified(ch Channel) bool {
	c, ok := f.Challenges[ch]
	return ok && c.Verified
}

func (f *Flow) clone() *Flow {
	c := *f
	c.Challenges = make(map[Channel]Challenge, len(f.Challenges))
	for k, v := range f.Challenges {
		c.Challenges[k] = v
	}
	if f.FieldErrors != nil {
		c.FieldErrors = make(FieldErrors, len(f.FieldErrors))
		for k, v := range f.FieldErrors {
			c.FieldErrors[k] = v
		}
	}
	if f.Bootstrap != nil {
		b := *f.Bootstrap
		c.Bootstrap = &b
	}
	return &c
}

// target returns the draft value an OTP on ch is delivered to.
func (d Draft) target(ch Channel) string {
	if ch == ChannelEmail {
		return d.Email
	}
	return d.Mobile
}
