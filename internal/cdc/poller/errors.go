package poller

import (
	"errors"
	"fmt"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

var (
	// ErrNotReady is returned by PollChanges before initialization completes.
	ErrNotReady = errors.New("watcher is not ready")

	// ErrPollInProgress is returned when a poll cycle is already running.
	ErrPollInProgress = errors.New("poll already in progress")

	// ErrStopped is returned once the watcher has been stopped.
	ErrStopped = errors.New("watcher is stopped")

	// ErrInitializing is returned when another caller is already initializing.
	ErrInitializing = errors.New("watcher initialization in progress")
)

// Phase names the statement of a poll cycle that failed.
type Phase string

const (
	PhaseIncremental Phase = "incremental"
	PhaseFull        Phase = "full"
)

// InitializationError means the bootstrap could not complete. The watcher is left
// uninitialized and the caller decides whether to try again.
type InitializationError struct {
	Watcher string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize watcher %s: %v", e.Watcher, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// QueryError means one statement of a poll cycle failed. The cycle is abandoned
// and the next tick tries again.
type QueryError struct {
	Watcher string
	Phase   Phase
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed for watcher %s: %v", e.Phase, e.Watcher, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// HandlerError wraps a failure of one change handler invocation.
type HandlerError struct {
	Change cdc.ChangeType
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed: %v", e.Change, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
