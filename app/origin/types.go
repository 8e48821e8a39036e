package origin

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned without contacting the origin while the breaker is open.
var ErrCircuitOpen = errors.New("origin circuit breaker is open")

// Post is the subset of a post the edge server reads from the origin.
type Post struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Datetime string `json:"datetime"`
	Summary  string `json:"summary"`
}

// Error is returned for every failed origin call and carries the original cause.
type Error struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("origin %s: unexpected status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("origin %s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
