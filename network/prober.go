package network

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/client"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

type ProberOption func(*Prober)

func WithProbeInterval(interval time.Duration) ProberOption {
	return func(p *Prober) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithProbeClient(cl *http.Client) ProberOption {
	return func(p *Prober) {
		if cl != nil {
			p.client = cl
		}
	}
}

// Prober checks a reachability URL and publishes the result to a Notifier.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	notifier *Notifier
}

func NewProber(notifier *Notifier, url string, opts ...ProberOption) *Prober {
	p := &Prober{
		url:      url,
		interval: defaultProbeInterval,
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = client.NewHTTPClient(client.WithHTTPTimeout(defaultProbeTimeout))
	}
	return p
}

// Probe performs one check. Any response below 500 means the internet is reachable.
func (p *Prober) Probe(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("url", p.url).Warn("invalid reachability url")
		return Status{}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		util.Log(ctx).WithError(err).Debug("reachability probe failed")
		return Status{}
	}
	util.CloseAndLogOnError(ctx, resp.Body)

	return Status{
		Connected:         true,
		InternetReachable: resp.StatusCode < http.StatusInternalServerError,
	}
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status := p.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		p.notifier.Publish(ctx, status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
