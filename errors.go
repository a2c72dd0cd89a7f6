package clamd

import (
	"errors"
	"fmt"
)

// Error codes for machine-readable error classification.
const (
	CodeConfiguration = "configuration_error"
	CodeTransport     = "transport_error"
	CodeProtocol      = "protocol_error"
	CodeTimeout       = "timeout"
	CodeEngine        = "engine_error"
)

// Error is the base error type for all client errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// Reply is the verbatim engine output that caused a protocol or engine error, if any.
	Reply string
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates an error for an unavailable transport or a missing parameter.
func NewConfigurationError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: msg,
		Cause:   cause,
	}
}

// NewTransportError creates an error for a connect, write or read failure.
func NewTransportError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// NewProtocolError creates an error for a reply the client could not interpret.
func NewProtocolError(msg, reply string) *Error {
	return &Error{
		Code:    CodeProtocol,
		Message: msg,
		Reply:   reply,
	}
}

// NewTimeoutError creates an error indicating a timeout.
func NewTimeoutError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: msg,
		Cause:   cause,
	}
}

// NewEngineError creates an error for an engine that reported a failure itself.
func NewEngineError(msg, reply string) *Error {
	return &Error{
		Code:    CodeEngine,
		Message: msg,
		Reply:   reply,
	}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigurationError reports whether err is or wraps a configuration error.
func IsConfigurationError(err error) bool {
	return hasCode(err, CodeConfiguration)
}

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool {
	return hasCode(err, CodeTransport)
}

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool {
	return hasCode(err, CodeProtocol)
}

// IsTimeoutError reports whether err is or wraps a timeout error.
func IsTimeoutError(err error) bool {
	return hasCode(err, CodeTimeout)
}

// IsEngineError reports whether err is or wraps an engine error.
func IsEngineError(err error) bool {
	return hasCode(err, CodeEngine)
}
