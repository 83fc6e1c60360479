package guides

import (
	"context"
	"log/slog"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/config"
)

// WithLogger builds the service logger from the logging configuration. Entries carry the
// service name and, when set, the environment.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Service) {
		logCfg := configAs[config.ConfigurationLogLevel](s)

		level, levelErr := util.ParseLevel(logCfg.LoggingLevel())
		if levelErr == nil {
			opts = append(opts, util.WithLogLevel(level))
		}
		opts = append(opts,
			util.WithLogTimeFormat(logCfg.LoggingTimeFormat()),
			util.WithLogNoColor(!logCfg.LoggingColored()))
		if logCfg.LoggingShowStackTrace() {
			opts = append(opts, util.WithLogStackTrace())
		}

		log := util.NewLogger(ctx, opts...).WithField("service", s.name)
		if s.environment != "" {
			log = log.WithField("environment", s.environment)
		}
		if levelErr != nil {
			log.WithError(levelErr).WithField("level", logCfg.LoggingLevel()).Warn("unknown log level, using default")
		}
		s.logger = log
	}
}

func (s *Service) Log(ctx context.Context) *util.LogEntry {
	return s.logger.WithContext(ctx)
}

func (s *Service) SLog(ctx context.Context) *slog.Logger {
	return s.Log(ctx).SLog()
}
