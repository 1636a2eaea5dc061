package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quietlabs/annoq/internal/queue"
)

// Task kind labels, as reported through the scheduler.
const (
	KindTrainBert   = "train_bert"
	KindPredictBert = "predict_bert"
	KindSimpleModel = "simplemodel"
	KindProjection  = "projection"
	KindFeature     = "feature"
)

// ErrInterrupted is returned by a job that observed its cancel handle
// and stopped before finishing.
var ErrInterrupted = errors.New("process interrupted by user")

// validate is shared across job constructors; validator instances cache
// struct metadata and are safe for concurrent use.
var validate = validator.New()

// base carries the scheduler-injected identity and cancellation signal
// common to every job type. Embedding it satisfies the SetID and
// SetCancelHandle half of the queue.Task interface.
type base struct {
	mu     sync.Mutex
	id     uuid.UUID
	cancel *queue.CancelHandle
}

// SetID records the scheduler-assigned id.
func (b *base) SetID(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

// SetCancelHandle records the cancellation signal the job must poll.
func (b *base) SetCancelHandle(h *queue.CancelHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel = h
}

func (b *base) taskID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *base) handle() *queue.CancelHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel
}

// canceled reports whether the scheduler signaled this job.
func (b *base) canceled() bool {
	h := b.handle()
	return h != nil && h.Canceled()
}

// cancelContext derives a context that is canceled when the injected
// handle fires, so collaborators that take a context stop alongside
// jobs that poll the handle directly.
func (b *base) cancelContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	h := b.handle()
	if h == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-h.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
