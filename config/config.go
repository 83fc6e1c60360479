package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

func (c contextKey) String() string {
	return "guides/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	DefaultAPITimeout         = 10 * time.Second
	DefaultCacheRetention     = 7 * 24 * time.Hour
	DefaultQueryRetry         = 2
	DefaultMutationRetry      = 1
	DefaultLanguage           = "en"
	DefaultCacheStorageKey    = "WOS_GUIDES_CACHE"
	DefaultLanguageStorageKey = "@app_language"
)

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

// LoadFile fills the config from the environment and then decodes a yaml file over it.
// Keys present in the file win; absent keys keep their environment or default value.
// An empty path behaves like FromEnv.
func LoadFile[T any](path string) (T, error) {
	cfg, err := FromEnv[T]()
	if err != nil || path == "" {
		return cfg, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	TraceRequests        bool `envDefault:"false" env:"TRACE_REQUESTS"          yaml:"trace_requests"`
	TraceRequestsLogBody bool `envDefault:"false" env:"TRACE_REQUESTS_LOG_BODY" yaml:"trace_requests_log_body"`

	ServiceName        string `envDefault:"wos-guides" env:"SERVICE_NAME"        yaml:"service_name"`
	ServiceEnvironment string `envDefault:""           env:"SERVICE_ENVIRONMENT" yaml:"service_environment"`
	ServiceVersion     string `envDefault:""           env:"SERVICE_VERSION"     yaml:"service_version"`

	APIBaseURL string        `envDefault:"http://localhost:3000" env:"API_BASE_URL" yaml:"api_base_url"`
	APITimeout time.Duration `envDefault:"10s"                   env:"API_TIMEOUT"  yaml:"api_timeout"`

	// Requests per second per API resource. Zero disables throttling.
	APIRateLimit float64 `envDefault:"0"  env:"API_RATE_LIMIT" yaml:"api_rate_limit"`
	APIRateBurst int     `envDefault:"0"  env:"API_RATE_BURST" yaml:"api_rate_burst"`

	StorageURI           string `envDefault:"sqlite://wos_guides.db" env:"STORAGE_URI"            yaml:"storage_uri"`
	CacheStorageKey      string `envDefault:"WOS_GUIDES_CACHE"       env:"CACHE_STORAGE_KEY"      yaml:"cache_storage_key"`
	LanguageStorageKey   string `envDefault:"@app_language"          env:"LANGUAGE_STORAGE_KEY"   yaml:"language_storage_key"`
	OnboardingStorageKey string `envDefault:"@onboarding_completed"  env:"ONBOARDING_STORAGE_KEY" yaml:"onboarding_storage_key"`

	QueryRetryCount    int           `envDefault:"2"    env:"QUERY_RETRY"          yaml:"query_retry"`
	MutationRetryCount int           `envDefault:"1"    env:"MUTATION_RETRY"       yaml:"mutation_retry"`
	QueryRetryDelay    time.Duration `envDefault:"1s"   env:"QUERY_RETRY_DELAY"    yaml:"query_retry_delay"`
	CacheRetention     time.Duration `envDefault:"168h" env:"CACHE_RETENTION"      yaml:"cache_retention"`
	CacheGCInterval    time.Duration `envDefault:"1h"   env:"CACHE_GC_INTERVAL"    yaml:"cache_gc_interval"`

	DefaultLanguageCode string   `envDefault:"en" env:"DEFAULT_LANGUAGE" yaml:"default_language"`
	DeviceLocales       []string `env:"DEVICE_LOCALES"                   yaml:"device_locales"`

	NetworkProbeURL      string        `envDefault:""    env:"NETWORK_PROBE_URL"      yaml:"network_probe_url"`
	NetworkProbeInterval time.Duration `envDefault:"30s" env:"NETWORK_PROBE_INTERVAL" yaml:"network_probe_interval"`

	// Worker pool settings
	WorkerPoolCapacity       int    `envDefault:"16" env:"WORKER_POOL_CAPACITY"        yaml:"worker_pool_capacity"`
	WorkerPoolCount          int    `envDefault:"1"  env:"WORKER_POOL_COUNT"           yaml:"worker_pool_count"`
	WorkerPoolExpiryDuration string `envDefault:"1s" env:"WORKER_POOL_EXPIRY_DURATION" yaml:"worker_pool_expiry_duration"`
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}
func (c *ConfigurationDefault) Environment() string {
	return c.ServiceEnvironment
}
func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTraceRequests interface {
	TraceReq() bool
	TraceReqLogBody() bool
}

var _ ConfigurationTraceRequests = new(ConfigurationDefault)

func (c *ConfigurationDefault) TraceReq() bool {
	return c.TraceRequests
}

func (c *ConfigurationDefault) TraceReqLogBody() bool {
	return c.TraceRequestsLogBody
}

type ConfigurationAPI interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	GetAPIRateLimit() (float64, int)
}

var _ ConfigurationAPI = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetAPIBaseURL() string {
	return strings.TrimRight(c.APIBaseURL, "/")
}

func (c *ConfigurationDefault) GetAPITimeout() time.Duration {
	if c.APITimeout <= 0 {
		return DefaultAPITimeout
	}
	return c.APITimeout
}

// GetAPIRateLimit returns the per resource rate and burst. A zero rate means unlimited.
func (c *ConfigurationDefault) GetAPIRateLimit() (float64, int) {
	if c.APIRateLimit <= 0 {
		return 0, 0
	}
	return c.APIRateLimit, c.APIRateBurst
}

type ConfigurationStorage interface {
	GetStorageURI() string
	GetCacheStorageKey() string
	GetLanguageStorageKey() string
	GetOnboardingStorageKey() string
}

var _ ConfigurationStorage = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetStorageURI() string {
	return c.StorageURI
}

func (c *ConfigurationDefault) GetCacheStorageKey() string {
	if c.CacheStorageKey == "" {
		return DefaultCacheStorageKey
	}
	return c.CacheStorageKey
}

func (c *ConfigurationDefault) GetLanguageStorageKey() string {
	if c.LanguageStorageKey == "" {
		return DefaultLanguageStorageKey
	}
	return c.LanguageStorageKey
}

func (c *ConfigurationDefault) GetOnboardingStorageKey() string {
	return c.OnboardingStorageKey
}

type ConfigurationQuery interface {
	GetQueryRetry() int
	GetMutationRetry() int
	GetQueryRetryDelay() time.Duration
	GetCacheRetention() time.Duration
	GetCacheGCInterval() time.Duration
}

var _ ConfigurationQuery = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetQueryRetry() int {
	if c.QueryRetryCount < 0 {
		return 0
	}
	return c.QueryRetryCount
}

func (c *ConfigurationDefault) GetMutationRetry() int {
	if c.MutationRetryCount < 0 {
		return 0
	}
	return c.MutationRetryCount
}

func (c *ConfigurationDefault) GetQueryRetryDelay() time.Duration {
	return c.QueryRetryDelay
}

func (c *ConfigurationDefault) GetCacheRetention() time.Duration {
	if c.CacheRetention <= 0 {
		return DefaultCacheRetention
	}
	return c.CacheRetention
}

func (c *ConfigurationDefault) GetCacheGCInterval() time.Duration {
	return c.CacheGCInterval
}

type ConfigurationLocalization interface {
	GetDefaultLanguage() string
	GetDeviceLocales() []string
}

var _ ConfigurationLocalization = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetDefaultLanguage() string {
	if c.DefaultLanguageCode == "" {
		return DefaultLanguage
	}
	return c.DefaultLanguageCode
}

func (c *ConfigurationDefault) GetDeviceLocales() []string {
	return c.DeviceLocales
}

type ConfigurationNetwork interface {
	GetNetworkProbeURL() string
	GetNetworkProbeInterval() time.Duration
}

var _ ConfigurationNetwork = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetNetworkProbeURL() string {
	return c.NetworkProbeURL
}

func (c *ConfigurationDefault) GetNetworkProbeInterval() time.Duration {
	return c.NetworkProbeInterval
}

type ConfigurationWorkerPool interface {
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *ConfigurationDefault) GetCount() int {
	return c.WorkerPoolCount
}

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	if c.WorkerPoolExpiryDuration != "" {
		duration, err := time.ParseDuration(c.WorkerPoolExpiryDuration)
		if err == nil {
			return duration
		}
	}

	return time.Second
}
