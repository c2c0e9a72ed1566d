package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when there is no usable cookie set.
var ErrNotFound = errors.New("session: no cached cookies")

// Store keeps the single cached CookieSet of the portal session along with the counter of
// consecutive authentication failures.
//
// Only the auth manager should hold a Store, everything else asks the manager for cookies.
type Store interface {
	// Get returns the cached set, or ErrNotFound when it is missing or expired.
	Get(ctx context.Context) (CookieSet, error)
	// Set replaces the cached set, the entry expires at set.ExpiresAt. It also resets
	// the failure counter.
	Set(ctx context.Context, set CookieSet) error
	// ClearCookies drops the cached set but keeps the failure counter.
	ClearCookies(ctx context.Context) error
	// Clear drops the cached set and resets the failure counter.
	Clear(ctx context.Context) error
	// Failures returns the amount of consecutive authentication failures, 0 once the
	// cooldown of the last failure has passed.
	Failures(ctx context.Context) (int, error)
	// AddFailure increments the failure counter and returns the new value. The whole
	// counter is forgotten `cooldown` after this failure.
	AddFailure(ctx context.Context, cooldown time.Duration) (int, error)
}
