package brokerapi

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexString accepts a JSON string, boolean or number and keeps its text form.
// The backend uses "success", "verify", "True", true and numeric ids interchangeably.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(str))
		return nil
	}
	// true, false and numbers keep their literal text.
	*s = FlexString(b)
	return nil
}

// String returns the raw text.
func (s FlexString) String() string { return string(s) }

// Is reports a case-insensitive match against any of the given values.
func (s FlexString) Is(values ...string) bool {
	for _, v := range values {
		if strings.EqualFold(string(s), v) {
			return true
		}
	}
	return false
}

// Truthy reports true for true/"true"/"True"/"yes"/"y"/"1"/"matched".
func (s FlexString) Truthy() bool {
	return s.Is("true", "yes", "y", "1", "matched")
}

// FlexFloat accepts a JSON number or a numeric string. Missing, empty or invalid values decode to 0,
// never NaN or Inf.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(string(s), ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Float64 returns the value.
func (f FlexFloat) Float64() float64 { return float64(f) }
