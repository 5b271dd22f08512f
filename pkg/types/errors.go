package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the engine.
type ErrorKind string

const (
	ErrKindAuth            ErrorKind = "AUTH"              // credentials rejected by a provider
	ErrKindBadRequest      ErrorKind = "BAD_REQUEST"       // malformed request
	ErrKindForbidden       ErrorKind = "FORBIDDEN"         // caller lacks permission
	ErrKindConflict        ErrorKind = "CONFLICT"          // concurrent modification or duplicate
	ErrKindNotFound        ErrorKind = "NOT_FOUND"         // referenced record does not exist
	ErrKindCancelled       ErrorKind = "CANCELLED"         // run or request was cancelled
	ErrKindURLNotAllowed   ErrorKind = "URL_NOT_ALLOWED"   // navigation blocked by the firewall
	ErrKindMaxStepsReached ErrorKind = "MAX_STEPS_REACHED" // step budget exhausted
	ErrKindMaxFailures     ErrorKind = "MAX_FAILURES"      // consecutive failure budget exhausted
	ErrKindResponseParse   ErrorKind = "RESPONSE_PARSE"    // model output could not be parsed
	ErrKindQuota           ErrorKind = "QUOTA"             // rate limit or quota exceeded
	ErrKindInternal        ErrorKind = "INTERNAL"          // anything else
)

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a detail value and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NewAuthError(msg string, cause error) *Error {
	return newError(ErrKindAuth, msg, cause)
}

func NewBadRequestError(msg string, cause error) *Error {
	return newError(ErrKindBadRequest, msg, cause)
}

func NewForbiddenError(msg string, cause error) *Error {
	return newError(ErrKindForbidden, msg, cause)
}

func NewConflictError(msg string, cause error) *Error {
	return newError(ErrKindConflict, msg, cause)
}

func NewNotFoundError(msg string, cause error) *Error {
	return newError(ErrKindNotFound, msg, cause)
}

func NewCancelledError(msg string, cause error) *Error {
	return newError(ErrKindCancelled, msg, cause)
}

// NewURLNotAllowedError reports a navigation target rejected by the firewall.
func NewURLNotAllowedError(url string) *Error {
	return newError(ErrKindURLNotAllowed, fmt.Sprintf("navigation to %q is not allowed", url), nil).
		WithDetail("url", url)
}

func NewMaxStepsReachedError(steps int) *Error {
	return newError(ErrKindMaxStepsReached, fmt.Sprintf("reached maximum of %d steps", steps), nil).
		WithDetail("steps", steps)
}

func NewMaxFailuresReachedError(failures int, cause error) *Error {
	return newError(ErrKindMaxFailures, fmt.Sprintf("stopped after %d consecutive failures", failures), cause).
		WithDetail("failures", failures)
}

// NewResponseParseError keeps the raw model output for diagnosis.
func NewResponseParseError(raw string, cause error) *Error {
	return newError(ErrKindResponseParse, "could not parse model response", cause).
		WithDetail("raw", raw)
}

func NewQuotaError(msg string, cause error) *Error {
	return newError(ErrKindQuota, msg, cause)
}

func NewInternalError(msg string, cause error) *Error {
	return newError(ErrKindInternal, msg, cause)
}

// KindOf returns the kind of the first typed error in the chain.
// Context cancellation maps to ErrKindCancelled.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind, true
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNonRetryable reports whether the executor must stop instead of counting a failure.
func IsNonRetryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case ErrKindAuth, ErrKindBadRequest, ErrKindForbidden, ErrKindCancelled,
		ErrKindConflict, ErrKindURLNotAllowed:
		return true
	}
	return false
}

// ErrorFromStatus maps a provider HTTP status to a typed error.
// Unknown statuses return nil so callers keep their own error.
func ErrorFromStatus(status int, body string) error {
	msg := fmt.Sprintf("provider returned status %d: %s", status, body)
	switch status {
	case 400:
		return NewBadRequestError(msg, nil)
	case 401:
		return NewAuthError(msg, nil)
	case 403:
		return NewForbiddenError(msg, nil)
	case 409:
		return NewConflictError(msg, nil)
	case 429:
		return NewQuotaError(msg, nil)
	}
	return nil
}
