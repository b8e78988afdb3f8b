package melcloud

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError is an HTTP-level rejection from the MELCloud API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("melcloud api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Unauthorized reports whether the rejection demands new credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// ShapeError means the API response did not match the expected contract,
// for example a payload that fails to decode or is missing required fields.
// This usually indicates server-side version skew rather than a transient
// fault.
type ShapeError struct {
	Op     string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("melcloud %s: unexpected payload: %s", e.Op, e.Detail)
}
