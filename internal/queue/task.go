package queue

import (
	"context"

	"github.com/google/uuid"
)

// Class identifies which concurrency ceiling governs a task's admission.
type Class string

// Possible queue classes
const (
	ClassCPU Class = "cpu"
	ClassGPU Class = "gpu"
)

// Status represents the observable state of a task entry. Pending and
// Running are stored on the entry; Done is derived at query time from
// the execution handle, never stored.
type Status string

// Possible status values
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Result is the opaque value a task produces. The scheduler never
// inspects it; it is owned by the execution handle and retrieved by
// whoever holds the entry's id.
type Result any

// Task represents a unit of heavy background work. Implementations own
// their captured parameters and collaborators; the scheduler only
// injects an id and a cancel handle before dispatch and calls Execute
// from a pool worker.
//
// Execute must observe the injected cancel handle cooperatively: the
// scheduler never terminates a running task, it only signals.
type Task interface {
	// Kind returns the free-form task kind label, used for reporting only.
	Kind() string

	// Execute runs the task to completion and returns its result or error.
	Execute(ctx context.Context) (Result, error)

	// SetID injects the scheduler-assigned unique id so the task can
	// self-report progress under a stable identity.
	SetID(id uuid.UUID)

	// SetCancelHandle injects the cancellation signal the task must poll.
	SetCancelHandle(h *CancelHandle)
}

// TaskState is the per-entry snapshot returned by Scheduler.State.
type TaskState struct {
	Status Status
	Err    error
	Kind   string
}
