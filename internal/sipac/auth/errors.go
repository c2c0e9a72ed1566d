package auth

import "errors"

// The first four errors end a single authentication attempt, another attempt may be made
// until the retry limit is reached.
var (
	ErrLoginPageParse         = errors.New("auth: could not read the login form")
	ErrAuthenticationRejected = errors.New("auth: authentication rejected")
	ErrInvalidCredentials     = errors.New("auth: invalid credentials")
	ErrTicketGrant            = errors.New("auth: ticket grant failed")

	// ErrAuthenticationExhausted means no further authentication attempt is allowed.
	ErrAuthenticationExhausted = errors.New("auth: authentication retries exhausted")
)
