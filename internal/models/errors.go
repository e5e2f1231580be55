// internal/models/errors.go
package models

import "errors"

// Error classes shared by every layer. Callers wrap them with fmt.Errorf("%w: ...")
// and HTTP/websocket handlers map them to status codes with errors.Is.
var (
	// ErrNotFound is returned when a room, puzzle, test case, user or submission id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is a state conflict: the operation is not allowed in the current phase.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidInput signals a malformed request (bad id, oversized code, unknown language).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized covers missing/invalid credentials and actions reserved to another user.
	ErrUnauthorized = errors.New("unauthorized")
)
