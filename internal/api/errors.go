package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is the stable kind for authorization failures that
	// survived the refresh-and-retry path.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshFailed is the stable kind for an irrecoverable credential
	// refresh. Seeing it means the session has already been forced to its
	// unauthenticated state.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// Error is a non-2xx API response with the server-provided code and message.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// UserMessage extracts the server-provided message from err for display,
// falling back to a generic string.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "something went wrong, please try again"
}
