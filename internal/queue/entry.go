package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotCompleted is returned by Handle.Result while the execution is
// still in flight, so an unfinished handle cannot be mistaken for a
// successful nil result.
var ErrNotCompleted = errors.New("execution has not completed")

// Entry is the scheduler's bookkeeping record for one submitted task.
// Callers receive copies; the scheduler owns the canonical record and
// mutates it in place under its lock during admission.
type Entry struct {
	// ID is the unique identifier assigned at submission.
	ID uuid.UUID

	// Kind is the free-form task kind label (e.g. "train_bert").
	Kind string

	// Project identifies the owning project, for grouping only.
	Project string

	// Class determines which concurrency ceiling governs admission.
	Class Class

	// State holds the stored portion of the lifecycle: pending until
	// admission, then frozen at running. Completion is derived from
	// Handle, never written back here.
	State Status

	// Cancel is the cooperative cancellation signal injected into the task.
	Cancel *CancelHandle

	// Handle is nil until admission; afterwards it is the sole owner of
	// the task's result and completion status.
	Handle *Handle

	// SubmittedAt is used for age-based reclamation.
	SubmittedAt time.Time

	// task holds the work itself between submission and admission. It is
	// cleared at dispatch so the captured state can be reclaimed; the
	// handle is the result channel from then on.
	task Task
}

// active reports whether the entry is dispatched and not yet completed.
// Used for depth gauges only; admission reads occupancy from the pool,
// which also counts dispatches whose entries were killed or reclaimed.
func (e *Entry) active() bool {
	return e.State == StatusRunning && e.Handle != nil && !e.Handle.Completed()
}

// Handle tracks the execution of a dispatched task. It is created at
// the moment of admission, exactly once per entry, and completed by the
// pool worker that ran the task.
type Handle struct {
	done   chan struct{}
	result Result
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// complete records the outcome and marks the handle done. Called
// exactly once, by the worker that executed the task.
func (h *Handle) complete(result Result, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Completed reports whether the underlying execution has finished,
// successfully or not.
func (h *Handle) Completed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the execution finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the task's outcome, or ErrNotCompleted while the
// execution is still in flight.
func (h *Handle) Result() (Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return nil, ErrNotCompleted
	}
}
