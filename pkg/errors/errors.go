// Package errors is the typed error vocabulary shared by every layer.
// A Code decides the HTTP status, retry hint and public message a failure
// maps to; the free-form message and details travel alongside it.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	// CodePaymentFailed marks a payment attempt the provider definitively refused.
	CodePaymentFailed Code = "PAYMENT_FAILED"
	// CodeInconsistent marks an upstream response that cannot be trusted (e.g. missing ids).
	CodeInconsistent Code = "INCONSISTENT_RESPONSE"
)

// Metadata is the transport-facing contract for a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry     = true
	noRetry   = false
	details   = true
	noDetails = false
)

var catalog = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, noRetry, "validation failed", details},
	CodeUnauthorized:  {http.StatusUnauthorized, noRetry, "authentication required", noDetails},
	CodeForbidden:     {http.StatusForbidden, noRetry, "access denied", noDetails},
	CodeNotFound:      {http.StatusNotFound, noRetry, "resource not found", noDetails},
	CodeConflict:      {http.StatusConflict, noRetry, "conflict detected", noDetails},
	CodeStateConflict: {http.StatusUnprocessableEntity, noRetry, "state transition disallowed", details},
	CodeIdempotency:   {http.StatusConflict, noRetry, "idempotency key reused", details},
	CodeRateLimit:     {http.StatusTooManyRequests, noRetry, "rate limit exceeded", noDetails},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", noDetails},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
	CodePaymentFailed: {http.StatusPaymentRequired, noRetry, "payment failed", details},
	CodeInconsistent:  {http.StatusBadGateway, noRetry, "upstream returned an inconsistent response", noDetails},
}

// MetadataFor falls back to the internal entry for codes it does not know.
func MetadataFor(code Code) Metadata {
	meta, ok := catalog[code]
	if !ok {
		return catalog[CodeInternal]
	}
	return meta
}

// Error is a coded failure with an optional cause and client-visible details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the payload exposed to clients when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code so callers can compare against sentinels.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.code == other.code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	if typed := As(err); typed != nil {
		return typed.code == code
	}
	return false
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return false
}
