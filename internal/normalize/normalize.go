// Package normalize turns raw phone numbers and email addresses into their
// canonical forms. Everything here is pure: no I/O, no clocks, deterministic
// output for a given input.
package normalize

import (
	"regexp"
	"strings"

	"github.com/cembakir/veriflow/internal/domain"
)

// Invalid reasons reported by Normalize and NormalizeAddress.
const (
	ReasonEmpty           = "empty"
	ReasonTooShort        = "too_short"
	ReasonTooLong         = "too_long"
	ReasonContainsLetters = "contains_letters"
	ReasonAllZeros        = "all_zeros"
	ReasonRepeatedDigits  = "repeated_digits"
	ReasonMalformed       = "malformed"
)

const (
	minDigits = 7
	maxDigits = 15
)

// Item is the normalization verdict for one raw input string.
type Item struct {
	Original      string
	Normalized    string
	Valid         bool
	InvalidReason string
}

var (
	letterRe = regexp.MustCompile(`[a-zA-Z]`)
	emailRe  = regexp.MustCompile(`^(?i)[a-z0-9!#$%&'*+\/=?^_\x60{|}~-]+(?:\.[a-z0-9!#$%&'*+\/=?^_\x60{|}~-]+)*@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
)

// Normalize canonicalizes a raw phone number. Checks run in a fixed order and
// the first failing one decides the invalid reason.
func Normalize(raw string) Item {
	original := raw

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Item{Original: original, InvalidReason: ReasonEmpty}
	}

	cleaned := stripNonDial(trimmed)
	cleaned = repairDialing(cleaned)

	digits := digitsOnly(cleaned)
	switch {
	case len(digits) < minDigits:
		return Item{Original: original, Normalized: cleaned, InvalidReason: ReasonTooShort}
	case len(digits) > maxDigits:
		return Item{Original: original, Normalized: cleaned, InvalidReason: ReasonTooLong}
	case letterRe.MatchString(trimmed):
		return Item{Original: original, Normalized: cleaned, InvalidReason: ReasonContainsLetters}
	case allZeros(digits):
		return Item{Original: original, Normalized: cleaned, InvalidReason: ReasonAllZeros}
	case repeatedDigit(digits):
		return Item{Original: original, Normalized: cleaned, InvalidReason: ReasonRepeatedDigits}
	}

	return Item{Original: original, Normalized: cleaned, Valid: true}
}

// NormalizeAddress canonicalizes a raw email address: lowercased, trimmed,
// syntax-checked against RFC 5321 length limits.
func NormalizeAddress(raw string) Item {
	original := raw

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Item{Original: original, InvalidReason: ReasonEmpty}
	}

	lowered := strings.ToLower(trimmed)
	if !validAddressSyntax(lowered) {
		return Item{Original: original, Normalized: lowered, InvalidReason: ReasonMalformed}
	}

	return Item{Original: original, Normalized: lowered, Valid: true}
}

// ForCategory dispatches to the right normalizer for the batch category.
func ForCategory(category domain.Category, raw string) Item {
	if category == domain.CategoryAddresses {
		return NormalizeAddress(raw)
	}
	return Normalize(raw)
}

// stripNonDial drops every character except digits and a leading plus.
func stripNonDial(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// repairDialing rewrites common local-dialing forms into E.164-style strings:
// an 11-digit number starting with 8 becomes +7..., a 00 prefix becomes +,
// and any 10+ digit string gains a leading +.
func repairDialing(s string) string {
	if strings.HasPrefix(s, "+") {
		return s
	}

	switch {
	case len(s) == 11 && s[0] == '8':
		return "+7" + s[1:]
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	case len(s) >= 10:
		return "+" + s
	}
	return s
}

func digitsOnly(s string) string {
	return strings.TrimPrefix(s, "+")
}

func allZeros(digits string) bool {
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r != '0' {
			return false
		}
	}
	return true
}

func repeatedDigit(digits string) bool {
	if len(digits) < minDigits {
		return false
	}
	first := digits[0]
	for i := 1; i < len(digits); i++ {
		if digits[i] != first {
			return false
		}
	}
	return true
}

func validAddressSyntax(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	if !emailRe.MatchString(email) {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, dom := parts[0], parts[1]

	if len(local) > 64 || len(dom) > 253 {
		return false
	}
	if strings.Contains(email, "..") {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}

	return true
}
