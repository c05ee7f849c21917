// Package ident classifies and validates the identifiers that appear in
// request paths and payloads: numeric entity ids, username slugs, and
// relation type tokens.
package ident

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the result of classifying a path identifier.
type Kind int

const (
	// KindInvalid means the string is neither a valid id nor a valid username.
	KindInvalid Kind = iota

	// KindID is an 8-digit numeric entity id.
	KindID

	// KindUsername is a username slug.
	KindUsername
)

var (
	idPattern       = regexp.MustCompile(`^[0-9]{8}$`)
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]+[a-z0-9]$`)
	typePattern     = regexp.MustCompile(`^[a-z][a-z-]*[a-z]$`)
)

// Classify reports whether s is a numeric id, a username, or invalid.
// Numeric strings that are not exactly 8 digits are invalid rather than
// usernames, so a truncated id never falls through to a username lookup.
func Classify(s string) Kind {
	if idPattern.MatchString(s) {
		return KindID
	}
	if ValidUsername(s) {
		return KindUsername
	}
	return KindInvalid
}

// ValidUsername reports whether s is a well-formed username slug:
// lowercase letters, digits and single hyphens, starting with a letter,
// ending with a letter or digit, at least 3 characters.
func ValidUsername(s string) bool {
	if !usernamePattern.MatchString(s) {
		return false
	}
	return !strings.Contains(s, "--")
}

// ValidRelationType reports whether s is a well-formed relation type token
// such as "artist" or "critic-of".
func ValidRelationType(s string) bool {
	return typePattern.MatchString(s)
}

// ParseID converts an 8-digit id string to its numeric value.
func ParseID(s string) (int64, bool) {
	if !idPattern.MatchString(s) {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatID renders a numeric id as the 8-digit string used in paths and keys.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
