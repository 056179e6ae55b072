package ctxbudget

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoCheckpointStore is returned when a checkpoint operation is
	// attempted without a configured store
	ErrNoCheckpointStore = errors.New("no checkpoint store configured")

	// ErrCheckpointNotFound is returned when seeding from a key that has
	// no saved checkpoint
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrEmptyBody is returned when appending a unit with no content
	ErrEmptyBody = errors.New("empty unit body")
)

// EngineError represents an error with additional context
type EngineError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewEngineError creates a new EngineError
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// NewEngineErrorWithSession creates a new EngineError with session ID
func NewEngineErrorWithSession(op string, sessionID string, err error) *EngineError {
	return &EngineError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
