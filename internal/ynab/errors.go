package ynab

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure kinds callers react to. Status-based
// failures are reported as *StatusError, which unwraps to one of these.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("authentication failed")
	ErrForbidden        = errors.New("access forbidden")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnexpectedStatus = errors.New("unexpected status")

	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("request timed out")
)

// StatusError is returned when the API answers with a non-2xx status that
// is not retried (or is no longer retried).
type StatusError struct {
	StatusCode int
	Detail     string // error detail from the response body, if any
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap maps the status code to its sentinel.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUnexpectedStatus
	}
}

// StatusCode returns the HTTP status carried by err, or 0 when err did not
// come from an HTTP response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
