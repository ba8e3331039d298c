/*
Package typedstore – error types.
*/
package typedstore

import (
	"errors"
	"fmt"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	ErrArgument    ErrorCode = "ArgumentError"
	ErrValidation  ErrorCode = "ValidationError"
	ErrInvalidPath ErrorCode = "InvalidPathError"
	ErrSchema      ErrorCode = "SchemaError"
	ErrNotFound    ErrorCode = "NotFoundError"
	ErrConflict    ErrorCode = "ConflictError"
	ErrRuntime     ErrorCode = "RuntimeError"
)

// Error is the general runtime error. It carries an optional Code and a
// free-form Context map for extra debugging data.
type Error struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// ArgError is for invalid argument / configuration errors.
type ArgError struct {
	Message string
	Code    ErrorCode
	Context map[string]any
}

func (e *ArgError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// NewArgError constructs an ArgError.
func NewArgError(msg string, code ...ErrorCode) *ArgError {
	c := ErrArgument
	if len(code) > 0 {
		c = code[0]
	}
	return &ArgError{Message: msg, Code: c}
}

// IsCode reports whether err (or any error it wraps) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) && te.Code == code {
		return true
	}
	var ae *ArgError
	if errors.As(err, &ae) && ae.Code == code {
		return true
	}
	return false
}
