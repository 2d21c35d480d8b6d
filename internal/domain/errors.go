package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures so callers pick retry, recovery or abort.
type ErrorKind string

const (
	// KindTransient: timeouts, 5xx, rate limits. Reads may retry; mutations
	// resolve through query-by-client-id.
	KindTransient ErrorKind = "transient"
	// KindRejected: the venue understood and refused the request.
	KindRejected ErrorKind = "rejected"
	// KindFatal: configuration or invariant problems that retries cannot fix.
	KindFatal ErrorKind = "fatal"
)

// ExchangeError is the typed error every gateway call returns on failure.
type ExchangeError struct {
	Kind ErrorKind
	Op   string
	Code int64 // venue error code, 0 if none
	Msg  string
	Err  error
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: [%s:%d] %s", e.Op, e.Kind, e.Code, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: [%s] %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Op, e.Kind, e.Msg)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

func kindOf(err error) (ErrorKind, bool) {
	var xe *ExchangeError
	if errors.As(err, &xe) {
		return xe.Kind, true
	}
	return "", false
}

// IsTransient reports whether err is a retryable transport failure.
// Untyped errors are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	k, ok := kindOf(err)
	return !ok || k == KindTransient
}

// IsRejected reports whether the venue refused the request.
func IsRejected(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRejected
}

// RejectCode returns the venue code of a rejection, 0 otherwise.
func RejectCode(err error) int64 {
	var xe *ExchangeError
	if errors.As(err, &xe) && xe.Kind == KindRejected {
		return xe.Code
	}
	return 0
}
