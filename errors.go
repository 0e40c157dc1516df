package simcore

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeCategoryExhausted     Code = "CATEGORY_EXHAUSTED"
	CodeInvalidShape          Code = "INVALID_SHAPE"
	CodeInvalidConfig         Code = "INVALID_CONFIG"
	CodeRenderQueueClosed     Code = "RENDER_QUEUE_CLOSED"
	CodeBodyCreationFailed    Code = "BODY_CREATION_FAILED"
	CodeUnresolvedPredecessor Code = "UNRESOLVED_PREDECESSOR"
	CodeUnresolvedTarget      Code = "UNRESOLVED_TARGET"
	CodeUnresolvedRoot        Code = "UNRESOLVED_ROOT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAlreadyRegistered     Code = "ALREADY_REGISTERED"
	CodeInvalidState          Code = "INVALID_STATE"
)

// Error is the simcore error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Message for logs
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is. Returned errors carry more context but share the code.
var (
	ErrCategoryExhausted     = newError(CodeCategoryExhausted, "simcore: category bits exhausted")
	ErrInvalidShape          = newError(CodeInvalidShape, "simcore: invalid collision shape")
	ErrInvalidConfig         = newError(CodeInvalidConfig, "simcore: invalid configuration")
	ErrRenderQueueClosed     = newError(CodeRenderQueueClosed, "simcore: render queue closed")
	ErrBodyCreationFailed    = newError(CodeBodyCreationFailed, "simcore: body creation failed")
	ErrUnresolvedPredecessor = newError(CodeUnresolvedPredecessor, "simcore: unresolved joint predecessor")
	ErrUnresolvedTarget      = newError(CodeUnresolvedTarget, "simcore: unresolved joint target")
	ErrUnresolvedRoot        = newError(CodeUnresolvedRoot, "simcore: unresolved compound root")
	ErrNotFound              = newError(CodeNotFound, "simcore: game object not found")
	ErrAlreadyRegistered     = newError(CodeAlreadyRegistered, "simcore: game object already registered")
	ErrInvalidState          = newError(CodeInvalidState, "simcore: invalid state")
)

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func withMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// notFound builds a NOT_FOUND error for a game object id.
func notFound(id uint64) *Error {
	return withMetadata(CodeNotFound, fmt.Sprintf("simcore: game object %d not found", id),
		map[string]string{"id": fmt.Sprint(id)})
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
