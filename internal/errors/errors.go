package errors

import (
	"errors"
	"fmt"
)

// ErrorType groups errors by the subsystem concern they belong to.
type ErrorType string

const (
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeFetch      ErrorType = "fetch"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeValidation ErrorType = "validation"
)

// ErrorSeverity indicates how loudly an error should be surfaced.
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
)

// AppError is the common error envelope carried across package boundaries.
type AppError struct {
	Type     ErrorType
	Code     string
	Message  string
	Severity ErrorSeverity
	Cause    error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Type, e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches AppErrors by code so sentinel comparisons work through wrapping.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func (e *AppError) WithSeverity(s ErrorSeverity) *AppError {
	e.Severity = s
	return e
}

// New creates a new AppError without a cause.
func New(t ErrorType, code, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Severity: SeverityMedium}
}

// Wrap attaches taxonomy metadata to an underlying error.
func Wrap(cause error, t ErrorType, code, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Severity: SeverityMedium, Cause: cause}
}
