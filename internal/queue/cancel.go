package queue

import "sync"

// CancelHandle is the cooperative cancellation signal shared between the
// scheduler and a dispatched task. The scheduler sets it on Kill; the
// task polls Canceled or selects on Done from inside the worker. It is
// the in-process rendition of the cross-boundary event the workers
// observe, so it must stay valid after the owning entry is removed.
type CancelHandle struct {
	once sync.Once
	done chan struct{}
}

// NewCancelHandle creates an unsignaled cancel handle.
func NewCancelHandle() *CancelHandle {
	return &CancelHandle{done: make(chan struct{})}
}

// Cancel signals the handle. Safe to call more than once.
func (h *CancelHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

// Canceled reports whether Cancel has been called.
func (h *CancelHandle) Canceled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the handle is signaled.
func (h *CancelHandle) Done() <-chan struct{} {
	return h.done
}
