// Package identity holds the authenticated user's public profile record as
// issued by the backend, plus client-side input canonicalization.
package identity

import (
	"errors"
	"strings"
)

// Identity is the server-issued user record. The client never mutates it
// except through an explicit profile update round-trip.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

// ErrInvalidInput marks client-side validation failures before any network
// round-trip (stable for errors.Is).
var ErrInvalidInput = errors.New("invalid_input")

// NormalizeUsername performs case-insensitive canonicalization.
// The server applies the same rule; normalizing pre-flight keeps comparisons
// (selected peer, presence ids) consistent with what the server will echo.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername checks the local invariants for a username before it is
// sent to signup or profile update.
func ValidateUsername(s string) error {
	s = NormalizeUsername(s)
	if len(s) < 3 || len(s) > 32 {
		return ErrInvalidInput
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return ErrInvalidInput
		}
	}
	return nil
}
