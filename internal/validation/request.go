// Package validation holds input validation helpers for the API surface.
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether the address is plausibly deliverable. Requester
// usernames double as notification addresses, so anything failing this never
// enters the workflow.
func ValidEmail(addr string) bool {
	if len(addr) > 254 {
		return false
	}
	return emailRegex.MatchString(addr)
}

// ValidName reports whether a person name field is non-blank.
func ValidName(name string) bool {
	return strings.TrimSpace(name) != ""
}

// ParsePositiveID parses a decimal id greater than zero.
func ParsePositiveID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
