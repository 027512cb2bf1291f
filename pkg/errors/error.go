// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): unknown, internal and timeout errors
//   - Validation errors (100-199): invalid parameters, configuration and symbols
//   - Data feed errors (300-399): missing files, downloads, parsing, factor and map files
//   - Universe errors (400-499): universe lookup and fundamental joins
//   - Order errors (500-599): order validation and lifecycle errors
//   - Brokerage errors (600-699): brokerage refusals, failures and cash sync
//   - Engine errors (700-799): engine initialization and runtime failures
//
// Usage:
//
//	err := errors.Newf(errors.ErrCodeDataNotFound, "no factor file for %s", symbol)
//	err := errors.Wrap(errors.ErrCodeDownloadFailed, "failed to fetch source", cause)
//
//	if errors.HasCode(err, errors.ErrCodeDataNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error is a coded error. Cause, when set, is reachable through Unwrap.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func New(code ErrorCode, message string) *Error {
	return Wrap(code, message, nil)
}

func Newf(code ErrorCode, format string, args ...any) *Error {
	return Wrap(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code and message to cause. A nil cause gives a plain coded error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return Wrap(code, fmt.Sprintf(format, args...), cause)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is and As forward to the standard library so callers need one errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode returns the code of the outermost *Error in err's chain, or
// ErrCodeUnknown.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode compares only the outermost code. Use IsCode to search wrapped causes.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsCode reports whether err or any error it wraps is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}

		if e.Code == code {
			return true
		}

		err = e.Cause
	}

	return false
}
