package domain

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	panPattern    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	otpPattern    = regexp.MustCompile(`^[0-9]{6}$`)
)

// DOBLayout is the date-of-birth format exchanged with the backend.
const DOBLayout = "2006-01-02"

// Field names used in FieldErrors.
const (
	FieldPAN        = "pan"
	FieldMobile     = "mobile"
	FieldEmail      = "email"
	FieldClientName = "client_name"
	FieldDOB        = "dob"
)

// OTPField is the FieldErrors key for the code entered on ch.
func OTPField(ch Channel) string { return string(ch) + "_otp" }

// FieldErrors maps a field name to a user-facing message. It is returned before any network call.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns fe as an error, or nil when empty.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// AsFieldErrors extracts FieldErrors from err.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Normalize trims the draft, upper-cases the PAN and lower-cases the e-mail.
func (d Draft) Normalize() Draft {
	return Draft{
		PAN:        strings.ToUpper(strings.TrimSpace(d.PAN)),
		Mobile:     strings.TrimSpace(d.Mobile),
		Email:      strings.ToLower(strings.TrimSpace(d.Email)),
		ClientName: strings.Join(strings.Fields(d.ClientName), " "),
		DOB:        strings.TrimSpace(d.DOB),
	}
}

// ValidPAN reports whether s has the PAN shape.
func ValidPAN(s string) bool { return panPattern.MatchString(s) }

// ValidMobile reports whether s is a ten digit Indian mobile number.
func ValidMobile(s string) bool { return mobilePattern.MatchString(s) }

// ValidEmail reports whether s looks like an e-mail address.
func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// ValidOTP reports whether s is exactly six digits.
func ValidOTP(s string) bool { return otpPattern.MatchString(s) }

// ValidDOB reports whether s is a YYYY-MM-DD date not after now.
func ValidDOB(s string, now time.Time) bool {
	d, err := time.Parse(DOBLayout, s)
	if err != nil {
		return false
	}
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return !d.After(today)
}

// ValidateIdentity checks the fields sent to the PAN/name/DOB plausibility check.
func (d Draft) ValidateIdentity(now time.Time) FieldErrors {
	fe := FieldErrors{}
	if !ValidPAN(d.PAN) {
		fe[FieldPAN] = "enter a valid PAN (e.g. ABCDE1234F)"
	}
	if d.ClientName == "" {
		fe[FieldClientName] = "name is required"
	}
	if !ValidDOB(d.DOB, now) {
		fe[FieldDOB] = "enter a valid date of birth (YYYY-MM-DD, not in the future)"
	}
	return fe
}

// ValidateTarget checks the PAN and the delivery target for an OTP on ch.
func (d Draft) ValidateTarget(ch Channel) FieldErrors {
	fe := FieldErrors{}
	if !ValidPAN(d.PAN) {
		fe[FieldPAN] = "enter a valid PAN (e.g. ABCDE1234F)"
	}
	switch ch {
	case ChannelMobile:
		if !ValidMobile(d.Mobile) {
			fe[FieldMobile] = "enter a valid 10 digit mobile number"
		}
	case ChannelEmail:
		if !ValidEmail(d.Email) {
			fe[FieldEmail] = "enter a valid e-mail address"
		}
	}
	return fe
}
