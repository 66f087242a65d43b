package store

import (
	"regexp"
	"strings"
)

// Wire format consumed by the mobile lookup validator: one uppercase letter,
// hyphen, at least three digits. Sequences past 999 keep growing digits
// instead of wrapping.
var codePattern = regexp.MustCompile(`^[A-Z]-\d{3,}$`)

func NormalizeCode(input string) string {
	code := strings.ToUpper(strings.TrimSpace(input))
	return strings.Join(strings.Fields(code), "")
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
