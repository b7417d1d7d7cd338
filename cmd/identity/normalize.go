package identity

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsernameLen = 2
	maxUsernameLen = 32
	maxEmailLen    = 254
)

// NormalizeUsername is the case-insensitive uniqueness key for usernames.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail is the case-insensitive uniqueness key for emails.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkUsername(s string) string {
	n := utf8.RuneCountInString(s)
	if n < minUsernameLen || n > maxUsernameLen {
		return "username must be 2-32 characters"
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return "username may contain letters, digits, '.', '_' and '-'"
		}
	}
	return ""
}

func checkEmail(s string) string {
	if len(s) > maxEmailLen {
		return "email too long"
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "email is not valid"
	}
	return ""
}
