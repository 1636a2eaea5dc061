// Package queue schedules the platform's long-running computations
// (model training, inference, projection, feature extraction) onto a
// shared pool of workers. It tracks a bounded backlog of task entries,
// admits them through a periodic loop that enforces per-class (cpu/gpu)
// and total concurrency ceilings, and answers point-in-time status
// queries without blocking callers.
package queue
