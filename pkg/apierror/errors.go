// Package apierror defines the closed error taxonomy returned by ghclient and
// the classifier that maps GitHub HTTP responses onto it.
//
// Every failure surfaced by the library is an *Error carrying a Kind, the HTTP
// status (when one was observed), an actionable message and a free-form
// Context bag for diagnostics. Use errors.As or the Is* helpers to branch on
// the kind:
//
//	var apiErr *apierror.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == apierror.KindRateLimit {
//		time.Sleep(time.Until(apiErr.RateLimit.Reset))
//	}
package apierror

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one member of the error taxonomy
type Kind uint8

const (
	// KindAPI is the catch-all for statuses with no dedicated kind
	KindAPI Kind = iota
	// KindAuthentication covers 401s and missing or unusable credentials
	KindAuthentication
	// KindPermission covers 403s that are not rate limits
	KindPermission
	// KindNotFound covers 404s
	KindNotFound
	// KindValidation covers 422s
	KindValidation
	// KindRateLimit covers 429s and rate-limited 403s
	KindRateLimit
	// KindNetwork covers 5xx responses and transport failures
	KindNetwork
)

// String returns the kind name used in logs and error prefixes
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	default:
		return "api"
	}
}

// FieldError is one entry of the errors array in a GitHub error body
type FieldError struct {
	Resource string `json:"resource,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code,omitempty"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RateLimit is the quota snapshot attached to rate-limit errors
type RateLimit struct {
	Remaining int
	Limit     int
	Reset     time.Time
}

// Error is the single error type of the taxonomy
type Error struct {
	Kind             Kind
	StatusCode       int
	Message          string
	DocumentationURL string
	Errors           []FieldError
	RateLimit        *RateLimit
	Context          map[string]any

	cause error
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Context: map[string]any{}}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind that keeps cause for errors.Is/As
func Wrap(cause error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error { return e.cause }

// AddContext records a diagnostic value and returns e for chaining
func (e *Error) AddContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// WithStatus sets the HTTP status code and returns e for chaining
func (e *Error) WithStatus(status int) *Error {
	e.StatusCode = status
	return e
}

// As returns the *Error inside err, if any
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindAPI with ok=false for foreign errors
func KindOf(err error) (Kind, bool) {
	if e, ok := As(err); ok {
		return e.Kind, true
	}
	return KindAPI, false
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsAuthentication reports whether err is an authentication error
func IsAuthentication(err error) bool { return IsKind(err, KindAuthentication) }

// IsPermission reports whether err is a permission error
func IsPermission(err error) bool { return IsKind(err, KindPermission) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsRateLimit reports whether err is a rate-limit error
func IsRateLimit(err error) bool { return IsKind(err, KindRateLimit) }

// IsNetwork reports whether err is a network or server-side error
func IsNetwork(err error) bool { return IsKind(err, KindNetwork) }
