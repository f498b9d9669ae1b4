package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind represents the category of a failed request
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindRateLimited          Kind = "rate_limited"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindTimeout              Kind = "timeout"
	KindNetwork              Kind = "network"
	KindNoData               Kind = "no_data"
	KindPlatformNotSupported Kind = "platform_not_supported"
	KindUnknown              Kind = "unknown"
)

// Error is the typed failure surfaced to callers of the orchestration layer
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	StatusHint int
	Retryable  bool
	OccurredAt time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

var codes = map[Kind]string{
	KindInvalidInput:         "INVALID_URL",
	KindRateLimited:          "RATE_LIMIT_EXCEEDED",
	KindUnauthorized:         "UNAUTHORIZED",
	KindNotFound:             "NOT_FOUND",
	KindTimeout:              "TIMEOUT",
	KindNetwork:              "NETWORK_ERROR",
	KindNoData:               "NO_DATA_FOUND",
	KindPlatformNotSupported: "PLATFORM_NOT_SUPPORTED",
	KindUnknown:              "UNKNOWN_ERROR",
}

var statusHints = map[Kind]int{
	KindInvalidInput:         http.StatusBadRequest,
	KindRateLimited:          http.StatusTooManyRequests,
	KindUnauthorized:         http.StatusUnauthorized,
	KindNotFound:             http.StatusNotFound,
	KindTimeout:              http.StatusRequestTimeout,
	KindNetwork:              http.StatusServiceUnavailable,
	KindNoData:               http.StatusNotFound,
	KindPlatformNotSupported: http.StatusNotImplemented,
	KindUnknown:              http.StatusInternalServerError,
}

// New builds an Error of the given kind with its code and status hint filled in
func New(kind Kind, message string) *Error {
	code, ok := codes[kind]
	if !ok {
		kind = KindUnknown
		code = codes[KindUnknown]
	}
	return &Error{
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusHint: statusHints[kind],
		OccurredAt: time.Now(),
	}
}

// InvalidInput reports a URL that failed validation
func InvalidInput(reason string) *Error {
	return New(KindInvalidInput, reason)
}

// RateLimited reports a request denied by the local limiter
func RateLimited(reason string) *Error {
	return New(KindRateLimited, reason)
}

// NoData reports a backend answer that normalized to nothing
func NoData() *Error {
	return New(KindNoData, "No media found for this URL")
}

// PlatformNotSupported reports a recognized but unimplemented platform
func PlatformNotSupported(platform string) *Error {
	return New(KindPlatformNotSupported, fmt.Sprintf("%s downloads are not supported yet", platform))
}

// Classify turns an arbitrary failure into a typed Error.
// Errors that are already typed pass through untouched.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	msg := strings.ToLower(err.Error())

	var kind Kind
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		kind = KindRateLimited
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		kind = KindUnauthorized
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		kind = KindNotFound
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		kind = KindNetwork
	default:
		kind = KindUnknown
	}

	e := New(kind, err.Error())
	e.Retryable = isRetryableMessage(msg)
	if kind == KindTimeout {
		e.Retryable = true
	}
	return e
}

// IsRetryable reports whether the caller may reasonably try the same request again
func IsRetryable(err error) bool {
	if e := Classify(err); e != nil {
		return e.Retryable
	}
	return false
}

func isRetryableMessage(msg string) bool {
	for _, marker := range []string{"timeout", "network", "connection", "503", "502", "500"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
