package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the control plane.
type ErrorCode string

// Session / browser error codes
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrBrowserLaunch     ErrorCode = "BROWSER_LAUNCH"
	ErrNotInitialized    ErrorCode = "NOT_INITIALIZED"
	ErrIndexOutOfRange   ErrorCode = "INDEX_OUT_OF_RANGE"
	ErrLastTab           ErrorCode = "LAST_TAB"
	ErrNoActivePage      ErrorCode = "NO_ACTIVE_PAGE"
	ErrScreencastStopped ErrorCode = "SCREENCAST_STOPPED"
	ErrScreencastFailure ErrorCode = "SCREENCAST_FAILURE"
	ErrTooManySessions   ErrorCode = "TOO_MANY_SESSIONS"
)

// Interpretation error codes
const (
	ErrNotRunning        ErrorCode = "NOT_RUNNING"
	ErrAlreadyRunning    ErrorCode = "ALREADY_RUNNING"
	ErrNotPaused         ErrorCode = "NOT_PAUSED"
	ErrInterpreterFailed ErrorCode = "INTERPRETER_FAILED"
)

// Storage / generic error codes
const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Severity 错误严重级别
type Severity string

const (
	// SeverityFatal 向调用方传播，不重试
	SeverityFatal Severity = "fatal"
	// SeverityRejected 操作被拒绝，状态不变
	SeverityRejected Severity = "rejected"
	// SeverityAdvisory 仅记录
	SeverityAdvisory Severity = "advisory"
)

// Error represents a structured error with code, severity, and cause.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
// Severity defaults to Rejected.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Severity: SeverityRejected}
}

// NewFatalError creates a Fatal error.
func NewFatalError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Severity: SeverityFatal}
}

// NewAdvisoryError creates an Advisory error.
func NewAdvisoryError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Severity: SeverityAdvisory}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsFatal reports whether err carries Fatal severity.
func IsFatal(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// IsRejected reports whether err is a rejected-operation error.
func IsRejected(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Severity == SeverityRejected
	}
	return false
}
