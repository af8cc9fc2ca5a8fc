package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOptimisticLockFailed   = errors.New("optimistic lock conflict")
	ErrDuplicateTransaction   = errors.New("duplicate gateway transaction")

	// Gateway errors
	ErrGatewayFailure     = errors.New("payment gateway failure")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Peer service errors
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderHasNoItem        = errors.New("order has no line item")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
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

// NewInvalidStateError reports an operation that is not allowed in the current status.
func NewInvalidStateError(message string) *DomainError {
	return NewDomainError("invalid_state", message, ErrInvalidStateTransition)
}

// NewNotFoundError reports a missing payment.
func NewNotFoundError(message string) *DomainError {
	return NewDomainError("not_found", message, ErrPaymentNotFound)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayError carries the human-readable message reported by the payment gateway.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrGatewayFailure
}

// NewGatewayError creates a gateway error for the given operation.
func NewGatewayError(op, message string, err error) *GatewayError {
	return &GatewayError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// DependencyError is a failure of the order, inventory or notification service.
type DependencyError struct {
	Service string
	Op      string
	Err     error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// NewDependencyError creates a dependency error. A nil err defaults to ErrDependencyUnavailable.
func NewDependencyError(service, op string, err error) *DependencyError {
	if err == nil {
		err = ErrDependencyUnavailable
	}
	return &DependencyError{
		Service: service,
		Op:      op,
		Err:     err,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrOrderNotFound)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) || errors.Is(err, ErrGatewayFailure) || errors.Is(err, ErrGatewayUnavailable)
}
