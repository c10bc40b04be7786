// Package filter cleans user input before it reaches a prompt and redacts
// secrets before request data reaches the logs.
package filter

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// CleanInput trims s and drops control characters other than newlines and
// tabs. Invalid UTF-8 is replaced.
func CleanInput(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) || r == '\u200b' || r == '\ufeff' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// ValidUUID reports whether s is a canonical RFC 4122 UUID.
func ValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ValidEmail reports whether s is a bare address such as "a@b.co".
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at:], ".")
}
