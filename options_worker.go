package guides

import (
	"context"

	"github.com/wosguides/guides/workerpool"
)

// WithWorkerPoolOptions overrides the pool settings derived from configuration.
func WithWorkerPoolOptions(options ...workerpool.Option) Option {
	return func(_ context.Context, s *Service) {
		s.poolOptions = append(s.poolOptions, options...)
	}
}

// WithWorkerManager supplies an already running worker manager.
func WithWorkerManager(m workerpool.Manager) Option {
	return func(_ context.Context, s *Service) {
		s.workers = m
	}
}
