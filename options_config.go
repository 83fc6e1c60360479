package guides

import (
	"cmp"
	"context"

	"github.com/wosguides/guides/config"
)

// WithConfig sets the configuration object and rebuilds the logger from it. Capabilities
// the object does not implement are read from the environment defaults instead.
func WithConfig(cfg any) Option {
	return func(ctx context.Context, s *Service) {
		s.configuration = cfg

		if svc, ok := cfg.(config.ConfigurationService); ok {
			s.name = cmp.Or(svc.Name(), s.name)
			s.environment = cmp.Or(svc.Environment(), s.environment)
			s.version = cmp.Or(svc.Version(), s.version)
		}

		WithLogger()(ctx, s)
	}
}

func (s *Service) Config() any {
	return s.configuration
}
