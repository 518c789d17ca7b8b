package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduler misuse. These are configuration errors,
// not runtime conditions.
var (
	// ErrUnknownTask is returned when starting or stopping an id that was never registered.
	ErrUnknownTask = errors.New("scheduler: unknown task")

	// ErrAlreadyRegistered is returned when an id is registered twice.
	ErrAlreadyRegistered = errors.New("scheduler: task already registered")

	// ErrInvalidPeriod is returned for a zero or negative period.
	ErrInvalidPeriod = errors.New("scheduler: invalid period")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scheduler: closed")
)

// TaskError wraps a handler failure with the task that produced it.
type TaskError struct {
	Task TaskID
	Err  error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("scheduler [%s]: %v", e.Task, e.Err)
}

// Unwrap returns the handler's error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
