package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment record errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrVariantMismatch        = errors.New("payment variant does not match provider")
	ErrMissingTransactionID   = errors.New("payment has no gateway transaction id")
	ErrAttributeStore         = errors.New("failed to store payment attribute")

	// Gateway operation errors
	ErrPaymentCreation       = errors.New("payment session creation failed")
	ErrPaymentRefund         = errors.New("payment refund failed")
	ErrGatewayRequest        = errors.New("gateway request failed")
	ErrRefundNotPermitted    = errors.New("payment must be confirmed to be refunded")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrNotImplemented        = errors.New("operation not supported by gateway")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is lets errors.Is match any ValidationError against ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayError describes a non-2xx answer from a remote gateway.
type GatewayError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded with status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s responded with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayRequest
}

// NewGatewayError creates a new gateway error
func NewGatewayError(provider string, statusCode int, body string) *GatewayError {
	return &GatewayError{
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
	}
}

// IsPrecondition reports whether err is a caller-side failure that never
// reached the gateway.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrRefundNotPermitted) ||
		errors.Is(err, ErrMalformedNotification) ||
		errors.Is(err, ErrNotImplemented) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrMissingTransactionID) ||
		errors.Is(err, ErrVariantMismatch)
}
