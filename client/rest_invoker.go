package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"github.com/sony/gobreaker/v2"
)

const defaultMaxResponseBodyLen = 10 << 20

var ErrResponseTooLarge = errors.New("response body truncated, it exceeds configured limit")

// BreakerSettings decides when a host's breaker opens. It trips once at least MinRequests
// were seen in Interval and the failed share reaches FailureRate. After OpenTimeout it lets
// HalfOpenRequests probes through.
type BreakerSettings struct {
	MinRequests      uint32
	FailureRate      float64
	Interval         time.Duration
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:      20,
		FailureRate:      0.5,
		Interval:         30 * time.Second,
		OpenTimeout:      45 * time.Second,
		HalfOpenRequests: 3,
	}
}

func (b BreakerSettings) gobreaker(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: b.HalfOpenRequests,
		Interval:    b.Interval,
		Timeout:     b.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < b.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= b.FailureRate
		},
	}
}

// serverError lets the breaker count a 5xx as a failure while the caller still reads the body.
type serverError struct {
	statusCode int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.statusCode)
}

// Manager performs single attempt JSON calls. Each backend host has its own circuit breaker,
// so a failing backend is refused quickly with gobreaker.ErrOpenState.
type Manager interface {
	Client(ctx context.Context) *http.Client
	Invoke(ctx context.Context, method string, endpointURL string, payload any,
		headers http.Header) (*InvokeResponse, error)
}

type InvokeResponse struct {
	StatusCode int
	Headers    http.Header
	Body       io.ReadCloser

	maxBodyLen int64
}

func (r *InvokeResponse) Close() error {
	if r.Body != nil {
		return r.Body.Close()
	}
	return nil
}

// ToContent reads the body up to the configured cap and closes it.
func (r *InvokeResponse) ToContent(ctx context.Context) ([]byte, error) {
	defer util.CloseAndLogOnError(ctx, r)

	reader := io.Reader(r.Body)
	if r.maxBodyLen > 0 {
		reader = io.LimitReader(r.Body, r.maxBodyLen+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if r.maxBodyLen > 0 && int64(len(data)) > r.maxBodyLen {
		return data[:r.maxBodyLen], ErrResponseTooLarge
	}
	return data, nil
}

type invoker struct {
	client     *http.Client
	maxBodyLen int64
	breaker    BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

// NewManager builds an instrumented client from opts and invokes through it.
func NewManager(opts ...HTTPOption) Manager {
	s := newSettings(opts...)
	return newInvoker(s.httpClient(), s)
}

// NewManagerWithClient invokes through cl, for example a client supplied by a host shell.
// Only the body cap and breaker options apply.
func NewManagerWithClient(cl *http.Client, opts ...HTTPOption) Manager {
	s := newSettings(opts...)
	if cl == nil {
		cl = s.httpClient()
	}
	return newInvoker(cl, s)
}

func newInvoker(cl *http.Client, s *settings) *invoker {
	return &invoker{
		client:     cl,
		maxBodyLen: s.maxBodyLen,
		breaker:    s.breaker,
		breakers:   map[string]*gobreaker.CircuitBreaker[*http.Response]{},
	}
}

func (i *invoker) Client(_ context.Context) *http.Client {
	return i.client
}

func (i *invoker) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	i.mu.Lock()
	defer i.mu.Unlock()

	cb, ok := i.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker[*http.Response](i.breaker.gobreaker("http:" + host))
		i.breakers[host] = cb
	}
	return cb
}

// execute runs exactly one attempt. Transport errors and 5xx responses count as breaker failures.
func (i *invoker) execute(req *http.Request) (*http.Response, error) {
	cb := i.breakerFor(req.URL.Host)

	resp, err := cb.Execute(func() (*http.Response, error) {
		resp, doErr := i.client.Do(req)
		if doErr != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &serverError{statusCode: resp.StatusCode}
		}
		return resp, nil
	})

	var sErr *serverError
	if resp != nil && errors.As(err, &sErr) {
		return resp, nil
	}
	return resp, err
}

// Invoke sends payload as JSON. Nil headers default to JSON content negotiation.
func (i *invoker) Invoke(ctx context.Context, method string, endpointURL string, payload any,
	headers http.Header) (*InvokeResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, body)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json"},
		}
	}
	req.Header = headers.Clone()

	//nolint:bodyclose // InvokeResponse owns the body
	resp, err := i.execute(req)
	if err != nil {
		return nil, err
	}

	return &InvokeResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       resp.Body,
		maxBodyLen: i.maxBodyLen,
	}, nil
}
