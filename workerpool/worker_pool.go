package workerpool

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"

	"github.com/wosguides/guides/config"
)

const (
	defaultPoolCapacity = 16
	releaseTimeout      = 5 * time.Second
)

// Options sizes the background refresh pool.
type Options struct {
	PoolCount          int
	SinglePoolCapacity int
	ExpiryDuration     time.Duration
	// Nonblocking makes Submit fail with ants.ErrPoolOverload instead of waiting for a worker.
	Nonblocking  bool
	PanicHandler func(any)
	Logger       *util.LogEntry
}

type Option func(*Options)

// WithPoolCount spreads tasks over count pools. One pool is used when count is below two.
func WithPoolCount(count int) Option {
	return func(opts *Options) {
		opts.PoolCount = count
	}
}

func WithSinglePoolCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.SinglePoolCapacity = capacity
	}
}

// WithPoolExpiryDuration sets how long an idle worker is kept.
func WithPoolExpiryDuration(duration time.Duration) Option {
	return func(opts *Options) {
		opts.ExpiryDuration = duration
	}
}

func WithPoolNonblocking(nonblocking bool) Option {
	return func(opts *Options) {
		opts.Nonblocking = nonblocking
	}
}

func WithPoolPanicHandler(handler func(any)) Option {
	return func(opts *Options) {
		opts.PanicHandler = handler
	}
}

func WithPoolLogger(logger *util.LogEntry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// defaultWorkerPoolOpts reads positive config values over the defaults. A nil cfg keeps them all.
func defaultWorkerPoolOpts(cfg config.ConfigurationWorkerPool, log *util.LogEntry) *Options {
	opts := &Options{
		SinglePoolCapacity: defaultPoolCapacity,
		PoolCount:          1,
		ExpiryDuration:     time.Second,
		Nonblocking:        true,
		Logger:             log,
		PanicHandler: func(p any) {
			log.WithField("panic", p).Error("background task panicked")
		},
	}
	if cfg == nil {
		return opts
	}

	if capacity := cfg.GetCapacity(); capacity > 0 {
		opts.SinglePoolCapacity = capacity
	}
	if count := cfg.GetCount(); count > 0 {
		opts.PoolCount = count
	}
	opts.ExpiryDuration = cfg.GetExpiryDuration()
	return opts
}

// antsPool is the part of *ants.Pool and *ants.MultiPool the manager uses.
type antsPool interface {
	Submit(task func()) error
	Running() int
}

type pool struct {
	ants    antsPool
	release func()
}

func setupWorkerPool(_ context.Context, wopts *Options) (WorkerPool, error) {
	antsOpts := []ants.Option{
		ants.WithNonblocking(wopts.Nonblocking),
		ants.WithLogger(wopts.Logger),
	}
	if wopts.ExpiryDuration > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(wopts.ExpiryDuration))
	}
	if wopts.PanicHandler != nil {
		antsOpts = append(antsOpts, ants.WithPanicHandler(wopts.PanicHandler))
	}

	if wopts.PoolCount <= 1 {
		p, err := ants.NewPool(wopts.SinglePoolCapacity, antsOpts...)
		if err != nil {
			return nil, err
		}
		return &pool{ants: p, release: p.Release}, nil
	}

	mp, err := ants.NewMultiPool(wopts.PoolCount, wopts.SinglePoolCapacity, ants.LeastTasks, antsOpts...)
	if err != nil {
		return nil, err
	}
	return &pool{ants: mp, release: func() { _ = mp.ReleaseTimeout(releaseTimeout) }}, nil
}

func (p *pool) Submit(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.ants.Submit(task)
}

func (p *pool) Running() int {
	return p.ants.Running()
}

func (p *pool) Shutdown() {
	p.release()
}
