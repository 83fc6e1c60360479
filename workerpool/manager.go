package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/wosguides/guides/config"
)

var ErrNoPool = errors.New("worker pool is not configured")

type manager struct {
	pool     WorkerPool
	stopOnce sync.Once
}

// NewManager builds the pool described by cfg, adjusted by opts.
func NewManager(ctx context.Context, cfg config.ConfigurationWorkerPool, opts ...Option) (Manager, error) {
	log := util.Log(ctx)

	poolOpts := defaultWorkerPoolOpts(cfg, log)
	for _, opt := range opts {
		opt(poolOpts)
	}

	pool, err := setupWorkerPool(ctx, poolOpts)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &manager{pool: pool}, nil
}

func (m *manager) GetPool() (WorkerPool, error) {
	if m.pool == nil {
		return nil, ErrNoPool
	}
	return m.pool, nil
}

func (m *manager) Submit(ctx context.Context, name string, task Task) (string, error) {
	if task == nil {
		return "", errors.New("task is nil")
	}

	pool, err := m.GetPool()
	if err != nil {
		return "", err
	}

	id := xid.New().String()
	log := util.Log(ctx).WithField("task", name).WithField("task_id", id)
	taskCtx := util.ContextWithLogger(context.WithoutCancel(ctx), log)

	err = pool.Submit(ctx, func() {
		log.Debug("running background task")
		task(taskCtx)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		if m.pool != nil {
			util.Log(ctx).WithField("running", m.pool.Running()).Debug("releasing worker pool")
			m.pool.Shutdown()
		}
	})
	return nil
}

// Go runs task on the manager's pool. Without a manager, or when the pool is saturated,
// the task runs on its own goroutine. Tasks refused for any other reason are dropped and
// Go reports false.
func Go(ctx context.Context, m Manager, name string, task Task) bool {
	if m == nil {
		go task(context.WithoutCancel(ctx))
		return true
	}

	_, err := m.Submit(ctx, name, task)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ants.ErrPoolOverload), errors.Is(err, ErrNoPool):
		go task(context.WithoutCancel(ctx))
		return true
	default:
		util.Log(ctx).WithError(err).WithField("task", name).Warn("background task dropped")
		return false
	}
}
