package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/client"
	"github.com/wosguides/guides/localization"
)

const (
	DefaultTimeout = 10 * time.Second

	HeaderLanguage = "Language"

	pathCategories    = "/categories"
	pathGuides        = "/guides"
	pathGuideSearch   = "/guides/search"
	pathSubcategories = "/subcategories"
	pathByCategory    = "/guides/category/"
)

// LanguageSource provides the active language code sent with every request.
type LanguageSource interface {
	Language() string
}

// Limiter throttles outgoing requests per resource.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

type Option func(*Client)

// WithLimiter throttles requests. A wait that cannot finish before the call deadline fails as a timeout.
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithTimeout sets the per call deadline. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLanguageSource(src LanguageSource) Option {
	return func(c *Client) {
		c.language = src
	}
}

// WithInvoker replaces the HTTP invoker, mostly useful with an instrumented or test client.
func WithInvoker(invoker client.Manager) Option {
	return func(c *Client) {
		if invoker != nil {
			c.invoker = invoker
		}
	}
}

// Client talks to the guides backend. It never retries.
type Client struct {
	baseURL  string
	timeout  time.Duration
	invoker  client.Manager
	language LanguageSource
	limiter  Limiter
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invoker == nil {
		c.invoker = client.NewManager()
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Language returns the code sent in the Language header for ctx.
func (c *Client) Language(ctx context.Context) string {
	if lang, ok := localization.FromContext(ctx); ok {
		return lang
	}
	if c.language != nil {
		if lang := c.language.Language(); lang != "" {
			return lang
		}
	}
	return localization.DefaultLanguage
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.do(ctx, http.MethodGet, pathCategories, nil, &out)
	return out, err
}

func (c *Client) Category(ctx context.Context, id string) (*Category, error) {
	var out Category
	if err := c.do(ctx, http.MethodGet, pathCategories+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Subcategories(ctx context.Context, parentID string) ([]Category, error) {
	var out []Category
	err := c.do(ctx, http.MethodGet, pathCategories+"/"+url.PathEscape(parentID)+pathSubcategories, nil, &out)
	return out, err
}

func (c *Client) Guides(ctx context.Context) ([]Guide, error) {
	var out []Guide
	err := c.do(ctx, http.MethodGet, pathGuides, nil, &out)
	return out, err
}

func (c *Client) Guide(ctx context.Context, id string) (*Guide, error) {
	var out Guide
	if err := c.do(ctx, http.MethodGet, pathGuides+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GuidesByCategory(ctx context.Context, categoryID string) ([]Guide, error) {
	var out []Guide
	err := c.do(ctx, http.MethodGet, pathByCategory+url.PathEscape(categoryID), nil, &out)
	return out, err
}

// SearchGuides returns guides matching query. A blank query returns no results without a request.
func (c *Client) SearchGuides(ctx context.Context, query string) ([]Guide, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Guide{}, nil
	}

	var out []Guide
	err := c.do(ctx, http.MethodGet, pathGuideSearch+"?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	var out Category
	if err := c.do(ctx, http.MethodPost, pathCategories, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id string, req UpdateCategoryRequest) (*Category, error) {
	var out Category
	if err := c.do(ctx, http.MethodPatch, pathCategories+"/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGuide(ctx context.Context, req CreateGuideRequest) (*Guide, error) {
	var out Guide
	if err := c.do(ctx, http.MethodPost, pathGuides, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateGuide(ctx context.Context, id string, req UpdateGuideRequest) (*Guide, error) {
	var out Guide
	if err := c.do(ctx, http.MethodPatch, pathGuides+"/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one timed request and decodes the unwrapped result into out.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	lang := c.Language(ctx)
	log := util.Log(ctx).
		WithField("method", method).
		WithField("endpoint", endpoint).
		WithField("language", lang)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx, resourceOf(endpoint)); err != nil {
			apiErr := &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("request timed out after %s", c.timeout),
				Err:     err,
			}
			log.WithError(err).Warn("api request throttled past its deadline")
			return apiErr
		}
	}

	headers := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
		HeaderLanguage: {lang},
	}

	resp, err := c.invoker.Invoke(callCtx, method, c.baseURL+endpoint, payload, headers)
	if err != nil {
		apiErr := c.transportError(err)
		log.WithError(err).WithField("kind", apiErr.Kind).Warn("api request failed")
		return apiErr
	}

	body, err := resp.ToContent(callCtx)
	if err != nil {
		apiErr := c.transportError(err)
		if errors.Is(err, client.ErrResponseTooLarge) {
			apiErr = parseError(resp.StatusCode, err)
		}
		log.WithError(err).WithField("status", resp.StatusCode).Warn("could not read api response")
		return apiErr
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var errPayload *ErrorPayload
		if json.Unmarshal(body, &errPayload) != nil {
			errPayload = nil
		}
		apiErr := httpStatusError(resp.StatusCode, errPayload)
		log.WithField("status", resp.StatusCode).WithField("message", apiErr.Message).Warn("api returned error status")
		return apiErr
	}

	if err = decodeEnvelope(body, out); err != nil {
		log.WithError(err).WithField("status", resp.StatusCode).Warn("could not parse api response")
		return parseError(resp.StatusCode, err)
	}

	log.WithField("status", resp.StatusCode).Debug("api request completed")
	return nil
}

func (c *Client) transportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("request timed out after %s", c.timeout),
			Err:     err,
		}
	}
	return &Error{Kind: KindNetwork, Message: "network request failed: " + err.Error(), Err: err}
}

// resourceOf returns the first path segment, e.g. "guides" for /guides/category/x.
func resourceOf(endpoint string) string {
	resource, _, _ := strings.Cut(strings.TrimPrefix(endpoint, "/"), "/")
	resource, _, _ = strings.Cut(resource, "?")
	return resource
}

// decodeEnvelope decodes body into out, unwrapping a top level "data" field when present.
func decodeEnvelope(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return errors.New("empty response body")
	}

	if body[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return err
		}
		if data, ok := envelope["data"]; ok {
			body = data
		}
	}

	return json.Unmarshal(body, out)
}
