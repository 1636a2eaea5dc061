package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors returned by the Scheduler
var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	// Retryable: callers should resubmit after entries complete or are
	// deleted.
	ErrQueueFull = errors.New("queue is full")

	// ErrNotFound is returned by Kill for an unknown id.
	ErrNotFound = errors.New("process not found")

	// ErrSchedulerClosed is returned by Submit after Close.
	ErrSchedulerClosed = errors.New("scheduler is closed")
)

// Config holds the scheduler's tunables.
type Config struct {
	// CPUWorkers is the concurrency ceiling for class cpu.
	CPUWorkers int

	// GPUWorkers is the concurrency ceiling for class gpu.
	GPUWorkers int

	// MaxBacklog caps the number of concurrently tracked entries,
	// pending plus running. Submissions beyond it fail.
	MaxBacklog int

	// TickInterval is the admission loop period.
	TickInterval time.Duration

	// StaleAge is the default reclamation threshold used by
	// CleanOldProcesses when called with a zero age.
	StaleAge time.Duration

	// AdmitAll switches admission from one entry per class per tick to
	// every eligible entry per tick. The per-tick throttle is the
	// historical behavior; it smooths burst admission and is kept as
	// the default.
	AdmitAll bool

	// Registerer receives the scheduler's prometheus collectors. If
	// nil, metrics are kept on a private registry and not exported.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		CPUWorkers:   3,
		GPUWorkers:   1,
		MaxBacklog:   15,
		TickInterval: time.Second,
		StaleAge:     2 * time.Hour,
	}
}

// Scheduler owns the backlog of task entries and the admission loop
// that binds them to the shared execution pool. All operations are
// non-blocking and safe for concurrent use; the backlog is guarded by a
// single mutex shared with the loop, since entries are mutated in place
// at admission while callers may be listing or counting.
//
// Known limitation: the scheduler does not detect loss of the execution
// pool. If the pool dies, failure only surfaces when a handle is polled.
type Scheduler struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries []*Entry
	pool    *pool
	closed  bool
}

// New creates a Scheduler. Call Start to begin admitting tasks. A nil
// logger falls back to the process default.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = def.CPUWorkers
	}
	if cfg.GPUWorkers <= 0 {
		cfg.GPUWorkers = def.GPUWorkers
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = def.MaxBacklog
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = def.StaleAge
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(cfg.Registerer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the admission loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started",
		"cpu_workers", s.cfg.CPUWorkers,
		"gpu_workers", s.cfg.GPUWorkers,
		"max_backlog", s.cfg.MaxBacklog,
		"tick_interval", s.cfg.TickInterval)
}

// Close stops the admission loop and shuts the execution pool down. It
// does not wait for in-flight tasks: their results are lost, matching
// the fire-and-forget contract of Kill and reclamation.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.pool != nil {
		s.pool.close()
		s.pool = nil
	}
	s.logger.Info("scheduler closed")
}

// Submit appends a pending entry for the given task and returns its
// fresh id immediately. The task receives the id and a cancel handle
// before it is stored, so it can self-identify and self-interrupt once
// dispatched. An empty class defaults to cpu.
func (s *Scheduler) Submit(kind, project string, task Task, class Class) (uuid.UUID, error) {
	if class == "" {
		class = ClassCPU
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return uuid.Nil, ErrSchedulerClosed
	}
	if len(s.entries) >= s.cfg.MaxBacklog {
		s.metrics.rejected.Inc()
		return uuid.Nil, fmt.Errorf("%w: backlog capacity %d reached, wait for a process to finish", ErrQueueFull, s.cfg.MaxBacklog)
	}

	id := uuid.New()
	handle := NewCancelHandle()
	task.SetID(id)
	task.SetCancelHandle(handle)

	s.entries = append(s.entries, &Entry{
		ID:          id,
		Kind:        kind,
		Project:     project,
		Class:       class,
		State:       StatusPending,
		Cancel:      handle,
		SubmittedAt: time.Now(),
		task:        task,
	})

	s.metrics.submitted.WithLabelValues(string(class)).Inc()
	s.refreshDepthsLocked()

	s.logger.Debug("task submitted",
		"task_id", id,
		"task_kind", kind,
		"project", project,
		"class", class,
		"backlog", len(s.entries))

	return id, nil
}

// Get returns a snapshot of the entry with the given id, or false when
// no such entry is tracked. Never errors and has no side effects.
func (s *Scheduler) Get(id uuid.UUID) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			snapshot := *e
			snapshot.task = nil
			return snapshot, true
		}
	}
	return Entry{}, false
}

// State derives the status of every tracked entry. Completion lives on
// the execution handle and is read fresh on every call, never cached,
// since tasks finish asynchronously inside the pool. A failed task
// reports StatusDone with a non-nil Err; the scheduler itself never
// errors because a task did.
func (s *Scheduler) State() map[uuid.UUID]TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[uuid.UUID]TaskState, len(s.entries))
	for _, e := range s.entries {
		st := TaskState{Status: StatusPending, Kind: e.Kind}
		if e.State == StatusRunning {
			st.Status = StatusRunning
		}
		if e.Handle != nil && e.Handle.Completed() {
			_, err := e.Handle.Result()
			st.Status = StatusDone
			st.Err = err
		}
		states[e.ID] = st
	}
	return states
}

// Kill signals the entry's cancel handle and removes the entry from the
// backlog immediately. Cancellation is cooperative: the running task
// must observe the signal itself, and the worker may still be unwinding
// after Kill returns. That race is accepted; the bookkeeping is gone
// either way.
func (s *Scheduler) Kill(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			e.Cancel.Cancel()
			s.removeLocked(i)
			s.metrics.killed.Inc()
			s.refreshDepthsLocked()
			s.logger.Info("task killed", "task_id", id, "task_kind", e.Kind)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes entries by id. Removing an entry whose execution has
// not finished is allowed and loses the result; it is logged, not an
// error. Unknown ids are ignored.
func (s *Scheduler) Delete(ids ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		for i, e := range s.entries {
			if e.ID != id {
				continue
			}
			if e.Handle == nil || !e.Handle.Completed() {
				s.logger.Warn("deleting an unfinished process",
					"task_id", id,
					"task_kind", e.Kind,
					"state", e.State)
			}
			s.removeLocked(i)
			break
		}
	}
	s.refreshDepthsLocked()
}

// CleanOldProcesses removes every entry submitted before now-maxAge,
// regardless of state, and returns how many were dropped. A zero or
// negative age falls back to the configured StaleAge. This is blunt,
// time-based bookkeeping reclamation: a still-running entry older than
// the threshold is dropped from tracking and its result orphaned, but
// its worker is not signaled. The surrounding application must call
// this on its own schedule; the scheduler does not self-clean.
func (s *Scheduler) CleanOldProcesses(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.cfg.StaleAge
	}
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.SubmittedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if removed > 0 {
		s.metrics.reclaimed.Add(float64(removed))
		s.refreshDepthsLocked()
		s.logger.Info("cleaned old processes", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// WaitingCount returns the number of pending entries of a class.
func (s *Scheduler) WaitingCount(class Class) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Class == class && e.State == StatusPending {
			n++
		}
	}
	return n
}

// run is the admission loop: a single goroutine ticking at the
// configured interval. It never blocks on anything but the ticker;
// dispatch to the pool is fire-and-forget.
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.admit()
		}
	}
}

// admit performs one admission pass. GPU is evaluated before CPU; that
// ordering is not a priority guarantee beyond at most one admission per
// class per tick (unless AdmitAll is set). Within a class, entries are
// admitted strictly in submission order.
func (s *Scheduler) admit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, class := range []Class{ClassGPU, ClassCPU} {
		for {
			if !s.admitOneLocked(class) {
				break
			}
			if !s.cfg.AdmitAll {
				break
			}
		}
	}
}

// admitOneLocked promotes the earliest pending entry of a class when
// both the class ceiling and the combined ceiling leave room. Reports
// whether an admission happened.
func (s *Scheduler) admitOneLocked(class Class) bool {
	// Occupancy is read from the pool, not the backlog: a killed or
	// reclaimed entry leaves the bookkeeping while its task still holds
	// a worker, and a completed handle frees its slot even before the
	// entry is deleted. Counting tracked entries would miss both.
	runningClass, runningTotal := 0, 0
	if s.pool != nil {
		runningClass, runningTotal = s.pool.occupancy(class)
	}

	var next *Entry
	for _, e := range s.entries {
		if e.State == StatusPending && e.Class == class {
			next = e
			break
		}
	}

	if next == nil || runningClass >= s.ceiling(class) || runningTotal >= s.ceilingTotal() {
		return false
	}

	// The pool is acquired lazily and reused across ticks; sizing is
	// always the combined ceiling, with class ceilings partitioning how
	// many slots each class may occupy at once.
	handle, ok := s.executorLocked().submit(next.ID, next.Class, next.task)
	if !ok {
		// Dispatch buffer full; the entry stays pending for a later pass.
		return false
	}
	next.Handle = handle
	next.State = StatusRunning
	next.task = nil

	s.metrics.admitted.WithLabelValues(string(class)).Inc()
	s.refreshDepthsLocked()

	s.logger.Info("task admitted",
		"task_id", next.ID,
		"task_kind", next.Kind,
		"class", class,
		"running_class", runningClass+1,
		"running_total", runningTotal+1)
	return true
}

// executorLocked returns the shared execution pool, creating it on
// first use. Cheap when nothing changed: the existing pool is reused
// every tick until Close tears it down.
func (s *Scheduler) executorLocked() *pool {
	if s.pool == nil {
		s.pool = newPool(s.ceilingTotal(), s.logger, s.metrics)
	}
	return s.pool
}

func (s *Scheduler) ceiling(class Class) int {
	if class == ClassGPU {
		return s.cfg.GPUWorkers
	}
	return s.cfg.CPUWorkers
}

func (s *Scheduler) ceilingTotal() int {
	return s.cfg.CPUWorkers + s.cfg.GPUWorkers
}

// removeLocked drops the entry at index i preserving submission order.
func (s *Scheduler) removeLocked(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

func (s *Scheduler) refreshDepthsLocked() {
	var pendingCPU, pendingGPU, runningCPU, runningGPU int
	for _, e := range s.entries {
		switch {
		case e.State == StatusPending && e.Class == ClassGPU:
			pendingGPU++
		case e.State == StatusPending:
			pendingCPU++
		case e.active() && e.Class == ClassGPU:
			runningGPU++
		case e.active():
			runningCPU++
		}
	}
	s.metrics.setDepths(pendingCPU, pendingGPU, runningCPU, runningGPU, len(s.entries))
}
