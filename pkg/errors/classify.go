package errors

import (
	"context"
	"errors"
	"strings"
)

// connectionLostPatterns are the message fragments that identify a dropped
// connection in drivers that only expose string errors. Pattern matching is
// confined to this boundary; everything raised inside the application
// carries its classification in the type.
var connectionLostPatterns = []string{
	"connection reset",
	"connection refused",
	"connection lost",
	"broken pipe",
	"unexpected eof",
	"server closed",
	"i/o timeout",
	"no such host",
}

// timeoutPatterns identify timeouts in opaque driver errors
var timeoutPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

func matchesAny(msg string, patterns []string) bool {
	msg = strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsConnectionLost reports whether the error indicates that the underlying
// connection to a backing service has been dropped. Typed errors are checked
// first; substring matching handles opaque driver errors.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == "CONNECTION_LOST"
	}
	return matchesAny(err.Error(), connectionLostPatterns)
}

// FromOpaque adapts an error from a third-party library into the taxonomy.
// AppErrors pass through untouched; context cancellation and deadline errors
// become timeouts; everything else is classified by message pattern and
// otherwise treated as a non-retryable external failure.
func FromOpaque(service string, err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewTimeoutError(service).WithCause(err)
	case matchesAny(err.Error(), connectionLostPatterns):
		return NewConnectionLostError(service + " connection lost").WithCause(err)
	case matchesAny(err.Error(), timeoutPatterns):
		return NewTimeoutError(service).WithCause(err)
	default:
		return NewExternalError(service, err.Error()).WithCause(err).WithRetryable(false)
	}
}

// RetryableByPatterns builds a retry classifier that consults the typed
// taxonomy first and falls back to the given message patterns for opaque
// errors. With no patterns it degrades to IsRetryable.
func RetryableByPatterns(patterns ...string) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		for e := err; e != nil; e = errors.Unwrap(e) {
			if rc, ok := e.(retryableCapable); ok {
				return rc.IsRetryable()
			}
		}
		return matchesAny(err.Error(), patterns)
	}
}
