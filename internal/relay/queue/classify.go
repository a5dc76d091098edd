package queue

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrorKind buckets a dispatch failure for retry and breaker accounting.
type ErrorKind int

const (
	// KindTransient covers timeouts, 5xx, and network failures: counted as
	// a breaker failure and retried with backoff.
	KindTransient ErrorKind = iota
	// KindRateLimited covers 429 / explicit throttle signals: not a breaker
	// failure; schedules a retry after the signaled delay.
	KindRateLimited
	// KindFatal covers other 4xx and validation failures: counted as a
	// breaker failure, never retried.
	KindFatal
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError carries an upstream failure with its kind and, for
// rate-limited failures, the server-indicated retry delay.
type ClassifiedError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// RateLimited builds a rate-limited classification with the given delay.
func RateLimited(err error, retryAfter time.Duration) *ClassifiedError {
	return &ClassifiedError{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Transient builds a transient classification.
func Transient(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindTransient, Err: err}
}

// Fatal builds a fatal classification.
func Fatal(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// Classify resolves an execution error to its kind. Errors the transport
// already classified pass through; timeouts and network errors read as
// transient. Unclassified errors default to transient so a flaky thunk
// still gets its bounded retries.
func Classify(err error) *ClassifiedError {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return Transient(err)
	}

	return Transient(err)
}
