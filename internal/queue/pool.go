package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatch carries one admitted task from the scheduler to a pool worker.
type dispatch struct {
	id     uuid.UUID
	class  Class
	task   Task
	handle *Handle
}

// pool is the shared execution context that runs task code. It is
// created lazily at the first admission, sized to the combined class
// ceiling, and reused across ticks until the scheduler closes it. The
// pool is the only component that touches task internals after dispatch.
type pool struct {
	tasks   chan dispatch
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	metrics *metrics
	tracer  trace.Tracer
	closed  bool

	mu       sync.Mutex
	inflight map[Class]int
}

// newPool starts size worker goroutines consuming the dispatch channel.
// The channel buffer matches the worker count, so every accepted
// dispatch is either buffered or inside a worker.
func newPool(size int, logger *slog.Logger, m *metrics) *pool {
	ctx, cancel := context.WithCancel(context.Background())

	p := &pool{
		tasks:    make(chan dispatch, size),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("annoq/queue"),
		inflight: make(map[Class]int),
	}

	for i := 0; i < size; i++ {
		go p.worker(i)
	}

	logger.Debug("execution pool started", "workers", size)
	return p
}

// submit hands a task to the pool and returns the handle that will
// carry its outcome. The send never blocks: when the dispatch buffer
// is full the submission is refused and the caller keeps the entry
// pending for a later pass.
func (p *pool) submit(id uuid.UUID, class Class, task Task) (*Handle, bool) {
	handle := newHandle()

	p.mu.Lock()
	p.inflight[class]++
	p.mu.Unlock()

	select {
	case p.tasks <- dispatch{id: id, class: class, task: task, handle: handle}:
		return handle, true
	default:
		p.release(class)
		return nil, false
	}
}

// occupancy reports how many dispatches of the class, and in total, are
// currently buffered or executing. A dispatch holds its slot until its
// worker returns, even after the scheduler has dropped the entry.
func (p *pool) occupancy(class Class) (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, n := range p.inflight {
		total += n
	}
	return p.inflight[class], total
}

func (p *pool) release(class Class) {
	p.mu.Lock()
	p.inflight[class]--
	p.mu.Unlock()
}

// close signals the workers to stop and returns immediately. A worker
// mid-task only exits when the task does; it is abandoned to unwind on
// its own, and its result is lost.
func (p *pool) close() {
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.logger.Debug("execution pool closed")
}

func (p *pool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case d := <-p.tasks:
			p.run(d)
		}
	}
}

// run executes a single task and completes its handle. Panics inside
// task code are recovered and surfaced as the handle's error, so a
// misbehaving task can never take the pool down.
func (p *pool) run(d dispatch) {
	logger := p.logger.With("task_id", d.id, "task_kind", d.task.Kind())

	ctx, span := p.tracer.Start(p.ctx, "queue.execute",
		trace.WithAttributes(
			attribute.String("task.id", d.id.String()),
			attribute.String("task.kind", d.task.Kind()),
			attribute.String("task.class", string(d.class)),
		))
	defer span.End()

	start := time.Now()
	result, err := p.execute(ctx, d.task)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("task failed", "error", err, "duration", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		logger.Info("task completed", "duration", elapsed)
	}

	p.metrics.observeCompletion(d.task.Kind(), elapsed, err)

	// The slot is freed before the handle reports done, so anyone who
	// observed completion sees the capacity already returned.
	p.release(d.class)
	d.handle.complete(result, err)
}

func (p *pool) execute(ctx context.Context, task Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task.Execute(ctx)
}
