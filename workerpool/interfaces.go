package workerpool

import (
	"context"
)

// Task is a unit of background work. The context carries the submitter's logger and values.
type Task func(ctx context.Context)

type Manager interface {
	GetPool() (WorkerPool, error)
	// Submit queues task and returns the id assigned to it.
	Submit(ctx context.Context, name string, task Task) (string, error)
	Shutdown(ctx context.Context) error
}

// WorkerPool defines the common methods for worker pool operations.
// This allows the Service to hold either a single ants.Pool or an ants.MultiPool.
type WorkerPool interface {
	Submit(ctx context.Context, task func()) error
	Running() int
	Shutdown()
}
