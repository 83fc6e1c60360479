package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultHTTPIdleTimeout = 90 * time.Second
)

// HTTPOption configures the HTTP client and the invoker built over it.
type HTTPOption func(*settings)

type settings struct {
	timeout     time.Duration
	idleTimeout time.Duration
	transport   http.RoundTripper
	userAgent   string
	maxBodyLen  int64

	trace   bool
	tracing TraceOptions

	breaker BreakerSettings
}

func newSettings(opts ...HTTPOption) *settings {
	s := &settings{
		timeout:     defaultHTTPTimeout,
		idleTimeout: defaultHTTPIdleTimeout,
		maxBodyLen:  defaultMaxResponseBodyLen,
		tracing:     TraceOptions{MaxBody: defaultTraceBodySize},
		breaker:     DefaultBreakerSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithHTTPTimeout bounds a whole exchange. Zero leaves deadlines to the caller's context.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithHTTPTransport replaces the instrumented default transport.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(s *settings) {
		s.transport = transport
	}
}

func WithHTTPIdleTimeout(timeout time.Duration) HTTPOption {
	return func(s *settings) {
		s.idleTimeout = timeout
	}
}

// WithHTTPUserAgent stamps every request that does not carry its own User-Agent.
func WithHTTPUserAgent(agent string) HTTPOption {
	return func(s *settings) {
		s.userAgent = agent
	}
}

// WithHTTPMaxResponseBody caps how many response bytes ToContent reads.
func WithHTTPMaxResponseBody(n int64) HTTPOption {
	return func(s *settings) {
		s.maxBodyLen = n
	}
}

// WithHTTPTraceRequests logs each exchange at debug level.
func WithHTTPTraceRequests() HTTPOption {
	return func(s *settings) {
		s.trace = true
	}
}

func WithHTTPTraceRequestHeaders() HTTPOption {
	return func(s *settings) {
		s.trace = true
		s.tracing.Headers = true
	}
}

func WithHTTPTraceRequestBody() HTTPOption {
	return func(s *settings) {
		s.trace = true
		s.tracing.Body = true
	}
}

// WithBreaker tunes the per host circuit breaker.
func WithBreaker(b BreakerSettings) HTTPOption {
	return func(s *settings) {
		s.breaker = b
	}
}

// NewHTTPClient builds the client used for API calls and reachability probes.
// Without a transport option it wraps a cloned default transport with otelhttp.
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	return newSettings(opts...).httpClient()
}

func (s *settings) httpClient() *http.Client {
	transport := s.transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if s.idleTimeout > 0 {
			base.IdleConnTimeout = s.idleTimeout
		}
		transport = otelhttp.NewTransport(base)
	}

	if s.userAgent != "" {
		transport = &userAgentTransport{next: transport, agent: s.userAgent}
	}

	if s.trace {
		transport = NewTraceTransport(transport, s.tracing)
	}

	return &http.Client{Transport: transport, Timeout: s.timeout}
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}
