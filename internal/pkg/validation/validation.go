package validation

import (
	"regexp"
	"sort"
	"strings"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Contact numbers are exactly ten digits, no country code or separators.
var contactRe = regexp.MustCompile(`^\d{10}$`)

const MinPasswordLength = 6

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength
}

func IsValidContact(contact string) bool {
	return contactRe.MatchString(strings.TrimSpace(contact))
}

// Blank reports whether s is empty after trimming.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// FieldErrors collects one message per form field. The zero value is ready
// to use; the first message recorded for a field sticks.
type FieldErrors map[string]string

func (e *FieldErrors) Add(field, message string) {
	if *e == nil {
		*e = make(FieldErrors)
	}
	if _, ok := (*e)[field]; !ok {
		(*e)[field] = message
	}
}

func (e FieldErrors) Empty() bool { return len(e) == 0 }

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return "invalid form: " + strings.Join(parts, "; ")
}
