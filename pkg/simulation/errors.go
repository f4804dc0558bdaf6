package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFunc is returned when a nil task body is scheduled.
	ErrNilFunc = errors.New("task function is nil")

	// ErrNegativeDelay is returned when a macrotask is scheduled in the past.
	ErrNegativeDelay = errors.New("delay must not be negative")

	// ErrInvalidInterval is returned for recurring timers whose period is not
	// positive or does not fit on the wall clock.
	ErrInvalidInterval = errors.New("interval out of range")

	// ErrRunning is returned by Run when called from inside a task body.
	ErrRunning = errors.New("simulator is already running")

	// ErrMicrotaskLimit is returned by Run when a single drain executes more
	// microtasks than the configured limit.
	ErrMicrotaskLimit = errors.New("microtask limit exceeded")

	// ErrTimeLimit is returned by Run when the next macrotask is due after the
	// configured time limit.
	ErrTimeLimit = errors.New("time limit exceeded")
)

// SchedulingError reports invalid arguments to a scheduling call. Nothing is
// enqueued when it is returned.
type SchedulingError struct {
	Op  string
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// TaskError wraps a value a task body panicked with.
type TaskError struct {
	Task  string
	Kind  Kind
	Value any
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("uncaught exception in %s: %v", e.Task, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *TaskError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
