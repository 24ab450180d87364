package profile

import (
	"errors"
	"strings"
	"unicode"
)

const (
	maxLoginLen = 64
	maxGroupLen = 32
)

// stripTags removes anything that looks like an HTML tag.
func stripTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatLogin keeps letters, digits and '-' of a university login.
func FormatLogin(s string) (string, error) {
	var b strings.Builder
	for _, r := range stripTags(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	login := b.String()
	if login == "" {
		return "", errors.New("profile: empty login")
	}
	if len([]rune(login)) > maxLoginLen {
		return "", errors.New("profile: login is too long")
	}
	return login, nil
}

// SanitizeGroup normalizes a group name such as "КИ23-01Б". Inner spaces
// are collapsed and unexpected characters are rejected.
func SanitizeGroup(s string) (string, error) {
	group := strings.Join(strings.Fields(stripTags(s)), " ")
	if group == "" {
		return "", errors.New("profile: empty group")
	}
	if len([]rune(group)) > maxGroupLen {
		return "", errors.New("profile: group name is too long")
	}
	for _, r := range group {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(" -/().", r) {
			return "", errors.New("profile: group name has invalid characters")
		}
	}
	return group, nil
}

// ValidSubgroup accepts one or two digits.
func ValidSubgroup(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
