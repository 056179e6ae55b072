package compaction

import (
	"errors"
	"fmt"
)

// Sentinel errors for compaction operations.
var (
	// ErrInvalidPolicy indicates invalid compaction policy configuration.
	ErrInvalidPolicy = errors.New("invalid compaction policy")

	// ErrNoHistoryToCompact indicates there are no History-tier units
	// eligible for compaction. Manual requests treat this as a no-op.
	ErrNoHistoryToCompact = errors.New("no history to compact")

	// ErrCompactionInFlight indicates a compaction is already running for
	// this session. Overlapping requests are rejected, not queued.
	ErrCompactionInFlight = errors.New("compaction already in flight")

	// ErrSummarizationUnavailable indicates the external summarizer failed.
	ErrSummarizationUnavailable = errors.New("summarization unavailable")

	// ErrSummarizationTimeout indicates the summarizer exceeded its
	// deadline. Treated identically to ErrSummarizationUnavailable.
	ErrSummarizationTimeout = errors.New("summarization timed out")

	// ErrVerificationFailed indicates the post-compaction state violated an
	// invariant. The transform is not committed; this is a logic defect,
	// not an external condition.
	ErrVerificationFailed = errors.New("compaction verification failed")
)

// Error provides structured context for compaction failures.
type Error struct {
	// Op is the operation that failed (e.g. "Plan", "Apply", "Summarize").
	Op string

	// SessionID is the session being compacted, if known.
	SessionID string

	// Err is the underlying error.
	Err error

	// Context holds additional key-value pairs for debugging.
	Context map[string]any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compaction %s failed", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" for session %s", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a compaction Error for the given operation.
func NewError(op string, err error) *Error {
	return &Error{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithSession sets the session ID and returns the error for chaining.
func (e *Error) WithSession(sessionID string) *Error {
	e.SessionID = sessionID
	return e
}

// WithContext adds a key-value pair and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
