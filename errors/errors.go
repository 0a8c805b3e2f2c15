// Package errors provides standardized error handling for the data layer.
// It includes error classification, the standard error variables shared by
// the schema and store packages, and helper functions for consistent error
// wrapping across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that a caller may retry
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or schema misuse
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Write protocol errors
	ErrWriteRejected = errors.New("write rejected by store")

	// Document and attachment errors
	ErrDocNotFound           = errors.New("document not found")
	ErrNoAttachment          = errors.New("document has no attachment")
	ErrAttachmentUnavailable = errors.New("attachment unavailable")

	// Format errors
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// Schema usage errors
	ErrInvalidSchemaUsage = errors.New("invalid schema usage")
	ErrInvalidPath        = errors.New("invalid document path")
	ErrInvalidData        = errors.New("invalid data format")

	// Lifecycle errors
	ErrStoreClosed  = errors.New("store closed")
	ErrStreamClosed = errors.New("event stream closed")
	ErrViewClosed   = errors.New("live view closed")

	// Store availability errors
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried by the caller.
// The schema layer itself never retries; classification exists so callers and
// store implementations can make that decision.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	// Check for known transient errors
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// A fatal or invalid condition is never transient, even when its message
	// happens to contain a transient-looking word.
	if isKnownFatal(err) || isKnownInvalid(err) {
		return false
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isKnownFatal checks the fatal sentinel set without consulting message patterns.
func isKnownFatal(err error) bool {
	return errors.Is(err, ErrAttachmentUnavailable) ||
		errors.Is(err, ErrUnsupportedFormat)
}

// isKnownInvalid checks the invalid sentinel set without consulting message patterns.
func isKnownInvalid(err error) bool {
	return errors.Is(err, ErrWriteRejected) ||
		errors.Is(err, ErrInvalidSchemaUsage) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrInvalidData)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if isKnownFatal(err) {
		return true
	}

	// Check error message for fatal patterns
	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"corrupted",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or schema misuse
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return isKnownInvalid(err)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsTransient(err) {
		return ErrorTransient
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Rejected builds a WriteRejected error carrying the store's reason.
// Store implementations use this when they refuse a mutation.
func Rejected(reason string) error {
	return fmt.Errorf("%w: %s", ErrWriteRejected, reason)
}
