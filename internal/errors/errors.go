package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries the error taxonomy used across component boundaries:
// a stable code, an operator-facing message, a user-facing message, and
// retryability. Infrastructure failures are contained close to their origin;
// only persistence errors on durable entities propagate.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewInfrastructureError marks a transient failure of cache or another
// infrastructure dependency. Callers degrade rather than abort.
func NewInfrastructureError(component string, cause error) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     fmt.Sprintf("infrastructure error: %s: %v", component, cause),
		UserMessage: "Service is temporarily unavailable. Please try again later.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewPersistenceError marks a store write failure on a durable entity.
// These propagate: silently losing a write would violate the data model.
func NewPersistenceError(cause error) *AppError {
	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("persistence error: %v", cause),
		UserMessage: "Something went wrong. Please try again later.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewAuthorizationError marks a denied privileged operation.
func NewAuthorizationError(selector string) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("authorization denied for %q", selector),
		UserMessage: "You do not have permission to perform this action.",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewRateLimitError marks a request rejected by the per-user limiter.
func NewRateLimitError(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:        "E400",
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfterSeconds),
		UserMessage: "Too many requests. Please wait a moment and try again.",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewDeliveryError marks a failed outbound delivery attempt.
func NewDeliveryError(cause error) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("delivery error: %v", cause),
		UserMessage: "Message could not be delivered.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// IsAuthorizationDenied reports whether err is an authorization denial.
func IsAuthorizationDenied(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "E300"
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "E400"
}
