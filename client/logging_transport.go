package client

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

const (
	defaultTraceBodySize = 1024
	redacted             = "[redacted]"
)

var sensitiveHeaders = map[string]struct{}{
	"Authorization": {},
	"Cookie":        {},
	"Set-Cookie":    {},
	"X-Api-Key":     {},
}

// TraceOptions selects what a traced exchange records besides method, url, status and duration.
type TraceOptions struct {
	Headers bool
	Body    bool
	// MaxBody caps the logged prefix of each body. Bodies are always forwarded whole.
	MaxBody int64
}

type traceTransport struct {
	next http.RoundTripper
	opts TraceOptions
}

// NewTraceTransport logs one debug line per exchange through the request context's logger.
func NewTraceTransport(next http.RoundTripper, opts TraceOptions) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultTraceBodySize
	}
	return &traceTransport{next: next, opts: opts}
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := util.Log(req.Context()).
		WithField("method", req.Method).
		WithField("url", req.URL.Redacted())

	if lang := req.Header.Get("Language"); lang != "" {
		log = log.WithField("language", lang)
	}
	if t.opts.Headers {
		log = log.WithField("request_headers", flattenHeaders(req.Header))
	}
	if t.opts.Body && req.Body != nil {
		var head []byte
		head, req.Body = peekBody(req.Body, t.opts.MaxBody)
		if len(head) > 0 {
			log = log.WithField("request_body", string(head))
		}
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	log = log.WithField("duration", time.Since(start).String())

	if err != nil {
		log.WithError(err).Debug("http exchange failed")
		return resp, err
	}

	log = log.WithField("status", resp.StatusCode)
	if t.opts.Headers {
		log = log.WithField("response_headers", flattenHeaders(resp.Header))
	}
	if t.opts.Body && resp.Body != nil {
		var head []byte
		head, resp.Body = peekBody(resp.Body, t.opts.MaxBody)
		if len(head) > 0 {
			log = log.WithField("response_body", string(head))
		}
	}

	log.Debug("http exchange")
	return resp, nil
}

// peekBody reads up to limit bytes and returns a body that still yields the whole stream.
func peekBody(body io.ReadCloser, limit int64) ([]byte, io.ReadCloser) {
	head, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return nil, body
	}

	return head, struct {
		io.Reader
		io.Closer
	}{
		Reader: io.MultiReader(bytes.NewReader(head), body),
		Closer: body,
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if _, secret := sensitiveHeaders[http.CanonicalHeaderKey(name)]; secret {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}
