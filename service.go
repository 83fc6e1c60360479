package guides

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/api"
	"github.com/wosguides/guides/cache"
	"github.com/wosguides/guides/client"
	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/localization"
	"github.com/wosguides/guides/network"
	"github.com/wosguides/guides/onboarding"
	"github.com/wosguides/guides/query"
	"github.com/wosguides/guides/ratelimiter"
	"github.com/wosguides/guides/workerpool"
)

type contextKey string

func (c contextKey) String() string {
	return "guides/" + string(c)
}

const ctxKeyService = contextKey("serviceKey")

// Service holds together the client core: storage, the API client, the query cache,
// localization and the onboarding flag. One instance lives for the lifetime of the app.
type Service struct {
	name          string
	version       string
	environment   string
	logger        *util.LogEntry
	configuration any
	defaults      *config.ConfigurationDefault

	httpClient *http.Client
	invoker    client.Manager

	storage cache.RawCache
	caches  cache.Manager

	poolOptions []workerpool.Option
	workers     workerpool.Manager

	monitor      network.Monitor
	notifier     *network.Notifier
	networkSub   network.Subscription
	proberCancel context.CancelFunc

	direction     localization.DirectionController
	prompter      localization.RestartPrompter
	deviceLocales []string

	languages  *localization.Manager
	api        *api.Client
	queries    *query.Client
	onboarding *onboarding.Store

	startupErrors []error
	cleanups      []func(ctx context.Context)
	stopOnce      sync.Once
	stopErr       error
}

type Option func(ctx context.Context, s *Service)

// NewService builds a Service from environment configuration and the supplied options.
// The returned context carries the service, its configuration and its logger.
func NewService(ctx context.Context, name string, opts ...Option) (context.Context, *Service, error) {
	defaultCfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		return ctx, nil, fmt.Errorf("load configuration: %w", err)
	}

	s := &Service{
		name:     name,
		logger:   util.Log(ctx),
		defaults: &defaultCfg,
	}

	WithConfig(&defaultCfg)(ctx, s)

	for _, opt := range opts {
		opt(ctx, s)
	}
	if name != "" && name != s.name {
		s.name = name
		s.logger = s.logger.WithField("service", name)
	}

	ctx = util.ContextWithLogger(ctx, s.logger)

	if err = s.init(ctx); err != nil {
		s.startupErrors = append(s.startupErrors, err)
	}
	if err = errors.Join(s.startupErrors...); err != nil {
		_ = s.Stop(ctx)
		return ctx, nil, err
	}

	ctx = ToContext(ctx, s)
	ctx = config.ToContext(ctx, s.Config())
	return ctx, s, nil
}

func (s *Service) init(ctx context.Context) error {
	log := s.Log(ctx)

	if s.invoker == nil {
		WithHTTPClient()(ctx, s)
	}

	if err := s.initStorage(ctx); err != nil {
		return err
	}

	if s.workers == nil {
		workers, err := workerpool.NewManager(ctx, configAs[config.ConfigurationWorkerPool](s), s.poolOptions...)
		if err != nil {
			return err
		}
		s.workers = workers
	}

	if err := s.initLocalization(ctx); err != nil {
		return err
	}

	apiCfg := configAs[config.ConfigurationAPI](s)
	apiOpts := []api.Option{
		api.WithTimeout(apiCfg.GetAPITimeout()),
		api.WithLanguageSource(s.languages),
		api.WithInvoker(s.invoker),
	}
	if rps, burst := apiCfg.GetAPIRateLimit(); rps > 0 {
		limiter := ratelimiter.NewKeyedLimiter(&ratelimiter.Config{RequestsPerSecond: rps, BurstSize: burst})
		s.AddCleanupMethod(func(context.Context) { _ = limiter.Close() })
		apiOpts = append(apiOpts, api.WithLimiter(limiter))
	}
	s.api = api.NewClient(apiCfg.GetAPIBaseURL(), apiOpts...)

	s.initNetwork(ctx)
	s.initQueries(ctx)

	storageCfg := configAs[config.ConfigurationStorage](s)
	s.onboarding = onboarding.NewStore(s.storage, storageCfg.GetOnboardingStorageKey())

	log.WithField("language", s.languages.Language()).
		WithField("api", apiCfg.GetAPIBaseURL()).
		Info("guides service ready")
	return nil
}

func (s *Service) initQueries(ctx context.Context) {
	queryCfg := configAs[config.ConfigurationQuery](s)
	storageCfg := configAs[config.ConfigurationStorage](s)

	persister := query.NewStoragePersister(s.storage, storageCfg.GetCacheStorageKey(), queryCfg.GetCacheRetention())
	s.queries = query.NewClient(ctx,
		query.WithPersister(persister),
		query.WithRetention(queryCfg.GetCacheRetention()),
		query.WithGCInterval(queryCfg.GetCacheGCInterval()),
		query.WithQueryRetry(queryCfg.GetQueryRetry()),
		query.WithMutationRetry(queryCfg.GetMutationRetry()),
		query.WithRetryDelay(queryCfg.GetQueryRetryDelay()),
		query.WithBuster(s.version),
		query.WithResolver(s.resolve),
		query.WithWorkerPool(s.workers),
	)

	s.networkSub = s.queries.AttachNetwork(s.monitor)
}

// configAs returns the configuration as T, falling back to the environment defaults.
func configAs[T any](s *Service) T {
	if cfg, ok := s.configuration.(T); ok {
		return cfg
	}
	var fallback any = s.defaults
	//nolint:errcheck // ConfigurationDefault implements every configuration interface
	return fallback.(T)
}

// ToContext pushes a service instance into the supplied context for easier propagation.
func ToContext(ctx context.Context, s *Service) context.Context {
	return context.WithValue(ctx, ctxKeyService, s)
}

// FromContext obtains a service instance being propagated through the context.
func FromContext(ctx context.Context) *Service {
	s, ok := ctx.Value(ctxKeyService).(*Service)
	if !ok {
		return nil
	}
	return s
}

// Name gets the name of the service. Its the first argument used when NewService is called.
func (s *Service) Name() string {
	return s.name
}

// WithName specifies the name the service will utilize.
func WithName(name string) Option {
	return func(_ context.Context, s *Service) {
		s.name = name
	}
}

// Version is the app version. It also versions the persisted query cache.
func (s *Service) Version() string {
	return s.version
}

func WithVersion(version string) Option {
	return func(_ context.Context, s *Service) {
		s.version = version
	}
}

func (s *Service) Environment() string {
	return s.environment
}

func WithEnvironment(environment string) Option {
	return func(_ context.Context, s *Service) {
		s.environment = environment
	}
}

func (s *Service) API() *api.Client {
	return s.api
}

func (s *Service) Queries() *query.Client {
	return s.queries
}

func (s *Service) Languages() *localization.Manager {
	return s.languages
}

func (s *Service) Onboarding() *onboarding.Store {
	return s.onboarding
}

func (s *Service) Network() network.Monitor {
	return s.monitor
}

func (s *Service) Storage() cache.RawCache {
	return s.storage
}

func (s *Service) WorkManager() workerpool.Manager {
	return s.workers
}

// AddCleanupMethod registers f to run when the service stops.
func (s *Service) AddCleanupMethod(f func(ctx context.Context)) {
	s.cleanups = append(s.cleanups, f)
}

// AddStartupError records an option failure. NewService returns all of them joined.
func (s *Service) AddStartupError(err error) {
	if err != nil {
		s.startupErrors = append(s.startupErrors, err)
	}
}

// Stop releases every component in reverse order of construction. It is safe to call twice.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error

		if s.proberCancel != nil {
			s.proberCancel()
		}
		if s.networkSub != nil {
			s.networkSub.Unsubscribe()
		}
		if s.queries != nil {
			errs = append(errs, s.queries.Close(ctx))
		}
		if s.workers != nil {
			errs = append(errs, s.workers.Shutdown(ctx))
		}
		for i := len(s.cleanups) - 1; i >= 0; i-- {
			s.cleanups[i](ctx)
		}
		if s.caches != nil {
			errs = append(errs, s.caches.Close())
		}

		s.stopErr = errors.Join(errs...)
		s.Log(ctx).Info("guides service stopped")
	})
	return s.stopErr
}
