// Package pipeerrors provides structured error handling for Cumulus with rich
// context, stack traces, and error categorization. It enables consistent error
// handling patterns across all pipeline stages.
//
// # Basic Usage
//
//	// Create a new error
//	err := pipeerrors.New(pipeerrors.ErrorTypeConfig, "required column missing")
//
//	// Add context
//	err = err.WithDetail("column", "datetime")
//
//	// Wrap existing errors
//	if err := w.Write(row); err != nil {
//	    return pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write row").
//	        WithDetail("path", path)
//	}
//
// # Error Types
//
// The pipeline distinguishes three outcomes on the hot path: configuration
// errors abort before any output is produced, parse errors divert a single
// row and let the run continue, and I/O errors abort the run after teardown.
package pipeerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used to decide whether a
// failure aborts the run or only the offending row.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors; these abort before
	// any output is produced
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeParse represents per-row key extraction failures; these are
	// non-fatal and divert the row to quarantine
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeIO represents file open, write, flush, or close failures;
	// these abort the run
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. This method can be
// chained for adding multiple details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
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

// IsType checks if the error is of the given type, useful for deciding
// between abort-the-run and skip-the-row handling.
//
// Example:
//
//	if pipeerrors.IsType(err, pipeerrors.ErrorTypeParse) {
//	    quarantine(row, err)
//	    continue
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsFatal reports whether the error should abort the run. Parse errors are
// the only non-fatal category; everything else stops processing.
func IsFatal(err error) bool {
	return !IsType(err, ErrorTypeParse)
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
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
