package guides

import (
	"context"

	"github.com/wosguides/guides/client"
	"github.com/wosguides/guides/config"
)

// HTTPClientManager obtains the instrumented invoker used for API calls.
func (s *Service) HTTPClientManager() client.Manager {
	return s.invoker
}

// WithHTTPClient configures the HTTP client used for API calls and reachability probes.
// Request tracing follows the TRACE_REQUESTS settings and requests carry a name/version User-Agent.
func WithHTTPClient(opts ...client.HTTPOption) Option {
	return func(_ context.Context, s *Service) {
		agent := s.name
		if s.version != "" {
			agent += "/" + s.version
		}
		opts = append([]client.HTTPOption{client.WithHTTPUserAgent(agent)}, opts...)

		traceCfg := configAs[config.ConfigurationTraceRequests](s)
		if traceCfg.TraceReq() {
			opts = append([]client.HTTPOption{client.WithHTTPTraceRequests()}, opts...)
			if traceCfg.TraceReqLogBody() {
				opts = append([]client.HTTPOption{client.WithHTTPTraceRequestBody()}, opts...)
			}
		}

		s.httpClient = client.NewHTTPClient(opts...)
		s.invoker = client.NewManagerWithClient(s.httpClient, opts...)
	}
}

// WithInvoker replaces the HTTP invoker entirely.
func WithInvoker(invoker client.Manager) Option {
	return func(_ context.Context, s *Service) {
		s.invoker = invoker
	}
}
