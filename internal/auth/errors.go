package auth

import "errors"

var (
	// ErrInvalidToken covers every token failure: bad signature, expiry,
	// malformed input, wrong principal kind. Callers must not learn which.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrHeaderMissing reports a request without an Authorization header.
	ErrHeaderMissing = errors.New("auth: authorization header missing")
	// ErrForbidden reports a valid token of the wrong principal kind.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrClock reports that the system time could not be read.
	ErrClock = errors.New("auth: clock unavailable")
)
