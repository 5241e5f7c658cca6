package dispatch

import "strings"

// MinPhoneDigits is the shortest number accepted after stripping formatting.
const MinPhoneDigits = 10

// DefaultCountryCode is prefixed to the national number.
const DefaultCountryCode = "91"

// InvalidTarget reports a phone number that cannot be addressed.
type InvalidTarget struct {
	Phone string
}

func (e *InvalidTarget) Error() string { return "Invalid phone number" }

// digits strips every non-digit rune.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// NormalizePhone builds a recipient from the last ten digits of raw,
// prefixed with countryCode.
func NormalizePhone(raw, countryCode string) (string, error) {
	d := digits(raw)
	if len(d) < MinPhoneDigits {
		return "", &InvalidTarget{Phone: raw}
	}
	return countryCode + d[len(d)-MinPhoneDigits:], nil
}

// MaskPhone replaces every digit except the last four with 'x'.
func MaskPhone(raw string) string {
	d := digits(raw)
	if len(d) <= 4 {
		return strings.Repeat("x", len(d))
	}
	return strings.Repeat("x", len(d)-4) + d[len(d)-4:]
}
