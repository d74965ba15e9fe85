package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the pipeline can produce. The kind
// drives retry policy: see FailureReason mapping in the dlq package.
type ErrorKind string

const (
	ErrInvalidTokenCount   ErrorKind = "invalid_token_count"
	ErrTokenCountMismatch  ErrorKind = "token_count_mismatch"
	ErrMissingOrganization ErrorKind = "missing_organization_id"
	ErrFutureTimestamp     ErrorKind = "future_timestamp"
	ErrInvalidPricing      ErrorKind = "invalid_pricing_structure"
	ErrMissingTariff       ErrorKind = "missing_tariff"
	ErrArithmetic          ErrorKind = "arithmetic_error"
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrServiceUnavailable  ErrorKind = "service_unavailable"
	ErrTimeout             ErrorKind = "timeout"
	ErrNetwork             ErrorKind = "network_error"
	ErrCircuitBreakerOpen  ErrorKind = "circuit_breaker_open"
	ErrValidation          ErrorKind = "validation_error"
	ErrParse               ErrorKind = "parse_error"
	ErrAuth                ErrorKind = "auth_error"
	ErrContractValidation  ErrorKind = "contract_validation_error"
	ErrDatabase            ErrorKind = "database_error"
	ErrInternal            ErrorKind = "internal_error"
)

// Error is the typed error carried through the ingestion and calculation
// path. RetryAfterSeconds is populated for rate-limit errors only.
type Error struct {
	Kind              ErrorKind
	Message           string
	RetryAfterSeconds int64
	cause             error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a typed error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a typed error.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// RateLimitedError carries the retry-after hint surfaced to clients.
func RateLimitedError(retryAfterSeconds int64, format string, args ...any) *Error {
	return &Error{
		Kind:              ErrRateLimited,
		Message:           fmt.Sprintf(format, args...),
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// KindOf extracts the ErrorKind from any error in the chain, or
// ErrInternal when the error is untyped.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
