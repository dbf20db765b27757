package g2p

import (
	"errors"
	"fmt"
)

// Common G2P errors
var (
	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid G2P engine specified")

	// ErrModelLoad indicates the phonemizer model could not be loaded
	ErrModelLoad = errors.New("failed to load phonemizer model")

	// ErrNoPronunciation indicates the model knows nothing about a token
	ErrNoPronunciation = errors.New("no pronunciation for token")

	// ErrEmptyInput indicates there was nothing to phonemize
	ErrEmptyInput = errors.New("empty input text")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	ErrorCodeTimeout     ErrorCode = "TIMEOUT"
	ErrorCodeServer      ErrorCode = "SERVER_ERROR"
	ErrorCodeRejected    ErrorCode = "REJECTED"
	ErrorCodeMalformed   ErrorCode = "MALFORMED_RESPONSE"
	ErrorCodeTransport   ErrorCode = "TRANSPORT"
	ErrorCodeInference   ErrorCode = "INFERENCE"
	ErrorCodeModelLoad   ErrorCode = "MODEL_LOAD"
	ErrorCodeEmptyInput  ErrorCode = "EMPTY_INPUT"
	ErrorCodeUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
)

// Error is a G2P failure with a code the caller can act on.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if the error should stop the worker slot.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeModelLoad, ErrorCodeUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the request can be retried
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeTimeout, ErrorCodeServer, ErrorCodeTransport:
		return true
	default:
		return false
	}
}

// Status maps the error code to a Result status.
func (e *Error) Status() Status {
	switch e.Code {
	case ErrorCodeTimeout:
		return StatusTimeout
	case ErrorCodeServer, ErrorCodeRejected:
		return StatusServerError
	case ErrorCodeMalformed:
		return StatusMalformed
	case ErrorCodeEmptyInput:
		return StatusEmptyInput
	case ErrorCodeInference, ErrorCodeModelLoad:
		return StatusInference
	default:
		return StatusTransport
	}
}
