package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeIO             ErrorType = "io"
	ErrorTypeRender         ErrorType = "render"
	ErrorTypeEncode         ErrorType = "encode"
	ErrorTypeServiceCall    ErrorType = "service_call"
	ErrorTypeReconciliation ErrorType = "reconciliation"
)

// NoBatch marks errors that are not tied to a batch
const NoBatch = -1

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Batch   int // NoBatch unless the error belongs to a batch
	Err     error

	// Set on reconciliation errors
	Expected int
	Got      int
}

func (e *DomainError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Batch != NoBatch {
		prefix = fmt.Sprintf("[%s] batch %d", e.Type, e.Batch)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Batch:   NoBatch,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// RenderError reports an unreadable PDF or a page that failed to rasterize.
func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

// EncodeError reports a staged page image that is missing or unreadable.
func EncodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeEncode, message, err)
}

// ServiceCallError reports a failed extraction request for a batch.
func ServiceCallError(batch int, err error) *DomainError {
	e := NewError(ErrorTypeServiceCall, "extraction request failed", err)
	e.Batch = batch
	return e
}

// ReconciliationError reports a batch response whose segment count does not
// match the number of pages in the batch.
func ReconciliationError(batch, expected, got int) *DomainError {
	e := NewError(ErrorTypeReconciliation,
		fmt.Sprintf("expected %d page segments, got %d", expected, got), nil)
	e.Batch = batch
	e.Expected = expected
	e.Got = got
	return e
}

// IsType reports whether any DomainError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// BatchOf returns the batch index attached to err, if any
func BatchOf(err error) (int, bool) {
	var de *DomainError
	if errors.As(err, &de) && de.Batch != NoBatch {
		return de.Batch, true
	}
	return NoBatch, false
}
