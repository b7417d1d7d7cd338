package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"iloveyou":    {},
	"letmein123":  {},
}

// Validate applies the length policy (counted in runes) and, when enabled,
// the weak-pattern check.
func (c Config) Validate(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && isVeryWeak(pw) {
		return ErrWeakPassword
	}
	return nil
}

func isVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	runes := []rune(s)
	repeated, digits := true, true
	for _, r := range runes {
		if r != runes[0] {
			repeated = false
		}
		if !unicode.IsDigit(r) {
			digits = false
		}
	}
	// All one character, or a PIN-like run of digits.
	return repeated || (digits && len(runes) < 12)
}
