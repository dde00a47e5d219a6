// Package errors provides structured error handling for the extractor.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents parameter validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents credential exchange or token errors
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeAPI represents an upstream vendor API failure
	ErrorTypeAPI ErrorType = "api"
	// ErrorTypeRateLimit represents rate limit errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents response parsing/processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeSink represents durable storage write errors
	ErrorTypeSink ErrorType = "sink"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// NewAPIError creates an error for a non-success upstream response. The HTTP
// status and a body excerpt are recorded as details; the type is chosen so
// that IsRetryable classifies 429 and 5xx responses as transient and other
// client errors as fatal.
func NewAPIError(status int, body string) *Error {
	const maxBodyExcerpt = 500
	if len(body) > maxBodyExcerpt {
		body = body[:maxBodyExcerpt]
	}

	errType := ErrorTypeAPI
	switch status {
	case http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
	case http.StatusGatewayTimeout:
		errType = ErrorTypeTimeout
	}

	return &Error{
		Type:    errType,
		Message: fmt.Sprintf("upstream API returned status %d", status),
		Details: map[string]interface{}{
			"status": status,
			"body":   body,
		},
		Stack: captureStack(2),
	}
}

// StatusCode returns the HTTP status recorded on an API error, or 0 if the
// error carries none.
func StatusCode(err error) int {
	var e *Error
	if !errors.As(err, &e) || e.Details == nil {
		return 0
	}
	if status, ok := e.Details["status"].(int); ok {
		return status
	}
	return 0
}

// IsRetryable returns true if the error is transient and a retry may succeed.
// Server-side failures (5xx), rate limits, timeouts and connection errors are
// transient; everything else is fatal.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	case ErrorTypeAPI:
		return StatusCode(err) >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the structured type of err, or ErrorTypeInternal for plain errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
