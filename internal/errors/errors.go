// Package errors provides error code definitions shared across the Duet client core.
package errors

import "fmt"

// ErrorCode identifies an error class that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors. Losing a queued mutation is unacceptable, so these
	// are fatal for the operation in progress and always propagate.
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"
	ErrQueueFull ErrorCode = "QUEUE_FULL"

	// Remote service errors
	ErrConnectivity   ErrorCode = "CONNECTIVITY_FAILURE"
	ErrRemoteRejected ErrorCode = "REMOTE_REJECTED"
	ErrCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	ErrUnknownOpType  ErrorCode = "UNKNOWN_OPERATION_TYPE"

	// Sync engine errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Real-time transport errors
	ErrTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrNotConnected    ErrorCode = "NOT_CONNECTED"
	ErrConnectFailed   ErrorCode = "CONNECT_FAILED"
	ErrGroupJoinFailed ErrorCode = "GROUP_JOIN_FAILED"
)

// AppError carries an error code alongside a message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
