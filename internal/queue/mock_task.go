package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockTask is a configurable Task implementation for testing.
type MockTask struct {
	TaskKind  string
	ExecuteFn func(ctx context.Context) (Result, error)

	mu     sync.Mutex
	id     uuid.UUID
	cancel *CancelHandle
}

// NewMockTask creates a MockTask of the given kind that succeeds with a
// nil result.
func NewMockTask(kind string) *MockTask {
	return &MockTask{
		TaskKind: kind,
		ExecuteFn: func(ctx context.Context) (Result, error) {
			return nil, nil
		},
	}
}

// NewBlockingTask creates a MockTask whose execution blocks until the
// returned release function is called, the injected cancel handle is
// signaled, or the context is done. Used to pin worker slots in tests.
func NewBlockingTask(kind string) (*MockTask, func()) {
	release := make(chan struct{})
	t := &MockTask{TaskKind: kind}
	t.ExecuteFn = func(ctx context.Context) (Result, error) {
		select {
		case <-release:
			return nil, nil
		case <-t.CancelHandle().Done():
			return nil, context.Canceled
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return t, func() { once.Do(func() { close(release) }) }
}

// NewUnresponsiveTask creates a MockTask that ignores both its context
// and its cancel handle, blocking until the returned release function
// is called. Models task code that never observes cancellation.
func NewUnresponsiveTask(kind string) (*MockTask, func()) {
	release := make(chan struct{})
	t := &MockTask{TaskKind: kind}
	t.ExecuteFn = func(ctx context.Context) (Result, error) {
		<-release
		return nil, nil
	}
	var once sync.Once
	return t, func() { once.Do(func() { close(release) }) }
}

// Kind returns the task kind label.
func (t *MockTask) Kind() string {
	return t.TaskKind
}

// Execute runs the configured function.
func (t *MockTask) Execute(ctx context.Context) (Result, error) {
	return t.ExecuteFn(ctx)
}

// SetID records the injected id.
func (t *MockTask) SetID(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = id
}

// SetCancelHandle records the injected cancel handle.
func (t *MockTask) SetCancelHandle(h *CancelHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = h
}

// AssignedID returns the id the scheduler injected at submission.
func (t *MockTask) AssignedID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// CancelHandle returns the handle the scheduler injected at submission.
func (t *MockTask) CancelHandle() *CancelHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel
}
