// Package apperror defines the error taxonomy shared by the fetch core.
// Every failure the service delivers to a caller wraps one of the sentinel
// errors below, so callers branch with errors.Is and never inspect strings.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTransport   = errors.New("transport failure")
	ErrCancelled   = errors.New("request cancelled")
	ErrValidation  = errors.New("validation error")
)

// AppError carries a sentinel plus the human-readable context for it.
type AppError struct {
	Err        error         // one of the sentinels above
	Message    string        // human-readable error message
	RetryAfter time.Duration // set for rate-limit errors
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports an unknown GitHub user. Terminal and user-correctable.
func NotFound(login string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("GitHub user %q not found", login),
	}
}

// RateLimited reports an exhausted API quota along with how long the
// caller should wait before retrying.
func RateLimited(retryAfter time.Duration) *AppError {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &AppError{
		Err:        ErrRateLimited,
		Message:    fmt.Sprintf("API rate limit exceeded, retry in %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// Transport reports a network or parse failure. Not retried by the core.
func Transport(err error) *AppError {
	return &AppError{
		Err:     ErrTransport,
		Message: fmt.Sprintf("GitHub request failed: %v", err),
	}
}

// Cancelled reports that the caller abandoned the request before delivery.
func Cancelled() *AppError {
	return &AppError{
		Err:     ErrCancelled,
		Message: "request cancelled before delivery",
	}
}

// Validation reports rejected input.
func Validation(message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
	}
}

// RetryAfter extracts the retry-after hint from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrRateLimited) {
		return appErr.RetryAfter, true
	}
	return 0, false
}
