// Package phone normalizes free-form phone numbers for contact matching.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize reduces raw to E.164 form ("+14155552671"). Numbers that
// libphonenumber cannot parse come back as their bare digits. Applying
// Normalize to its own output returns the same string.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	// "00" international prefix, trunk zeros and "+" all reduce to the
	// bare country code and subscriber digits.
	digits := strings.TrimLeft(strings.ReplaceAll(b.String(), "+", ""), "0")
	if digits == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return digits
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// Digits returns raw with everything but digits removed, the form the
// Cloud API expects in the "to" field.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
