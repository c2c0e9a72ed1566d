package fetch

import (
	"errors"
	"fmt"
)

// ErrSessionExpired means the portal answered with the login page instead of the
// requested one.
var ErrSessionExpired = errors.New("fetch: session expired")

// FetchExhaustedError is the terminal error of Orchestrator.Fetch, Err is the cause of the
// last attempt.
type FetchExhaustedError struct {
	Url    string
	Method string
	// Attempts is the amount of tries made by this call.
	Attempts      int
	CallerAttempt int
	Err           error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf(
		"fetch %s %s: exhausted after %d attempt(s) (caller attempt %d): %v",
		e.Method, e.Url, e.Attempts, e.CallerAttempt, e.Err,
	)
}

func (e *FetchExhaustedError) Unwrap() error {
	return e.Err
}
