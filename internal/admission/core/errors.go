// Package core defines sentinel errors and error codes.
package core

import "errors"

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates missing resources.
var ErrNotFound = errors.New("not found")

// ErrConfiguration indicates malformed startup configuration.
var ErrConfiguration = errors.New("invalid configuration")

// ErrorCode classifies errors for transport status mapping.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeInvalidInput
	CodeNotFound
	CodeUnauthorized
	CodeConfiguration
)

type codedError struct {
	code ErrorCode
	msg  string
	err  error
}

// Error returns the message for a coded error.
func (e *codedError) Error() string {
	if e == nil {
		return "unknown error"
	}
	if e.msg != "" {
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return "unknown error"
}

// Unwrap exposes the wrapped error.
func (e *codedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap attaches an error code to an error.
func Wrap(code ErrorCode, msg string, err error) error {
	return &codedError{code: code, msg: msg, err: err}
}

// CodeOf extracts the error code from an error chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeUnknown
	}
}
