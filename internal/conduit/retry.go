package conduit

import (
	"context"
	"errors"
	"time"
)

// errInvalidAuth is the Conduit error code for a bad or expired token.
const errInvalidAuth = "ERR-INVALID-AUTH"

type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is a network failure, a rate limit or a
// server error worth retrying.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// IsAuthError reports whether Conduit rejected the API token.
func IsAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == errInvalidAuth
}

// baseBackoff is the first retry delay; it doubles on every attempt.
var baseBackoff = time.Second

// Retry calls fn until it succeeds, returns a non-transient error, or
// maxRetries additional attempts have been made.
func Retry(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := baseBackoff << uint(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
