// Package api is the REST client for the storefront backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	maxBodyBytes   = 4 << 20
)

var ErrNoToken = errors.New("no auth token")

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	breaker *circuitbreaker.Breaker
	sfg     singleflight.Group
	log     zerolog.Logger
}

type request struct {
	method   string
	endpoint string
	params   url.Values
	body     any
	auth     bool
	header   http.Header
}

// NewClient builds a client rooted at baseURL. Endpoints are joined to it
// with a single slash, so "products/1" against ".../api" hits ".../api/products/1".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 10 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   c.timeout,
		}
	}
	if c.breaker == nil {
		cfg := circuitbreaker.DefaultConfig("storefront-api")
		cfg.IsSuccessful = BreakerSuccess
		c.breaker = circuitbreaker.New(cfg, c.log)
	}
	return c, nil
}

// BreakerSuccess keeps client-side rejections (4xx) and the caller's own
// cancellations and deadlines from tripping the breaker.
func BreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}

func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.get(ctx, request{method: http.MethodGet, endpoint: endpoint, params: params}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.call(ctx, request{method: http.MethodPost, endpoint: endpoint, body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.call(ctx, request{method: http.MethodPut, endpoint: endpoint, body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.call(ctx, request{method: http.MethodDelete, endpoint: endpoint}, out)
}

func (c *Client) GetAuth(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.get(ctx, request{method: http.MethodGet, endpoint: endpoint, params: params, auth: true}, out)
}

func (c *Client) PostAuth(ctx context.Context, endpoint string, body, out any) error {
	return c.call(ctx, request{method: http.MethodPost, endpoint: endpoint, body: body, auth: true}, out)
}

// get coalesces identical in-flight GETs; each caller decodes its own copy.
// The shared request outlives a cancelled caller and is bounded by the
// client timeout instead.
func (c *Client) get(ctx context.Context, req request, out any) error {
	key := c.url(req.endpoint, req.params)
	if req.auth {
		key = "auth " + key
	}
	ch := c.sfg.DoChan(key, func() (any, error) {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.send(sendCtx, req)
	})

	select {
	case <-ctx.Done():
		return &Error{Category: CategoryTransport, Message: ctx.Err().Error(), Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if res.Shared {
			c.log.Debug().Str("url", key).Msg("shared in-flight response")
		}
		return decode(res.Val.([]byte), out)
	}
}

func (c *Client) call(ctx context.Context, req request, out any) error {
	data, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.endpoint, r.params), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if r.auth {
		token, err := c.token(ctx)
		if err != nil {
			return nil, &Error{StatusCode: http.StatusUnauthorized, Category: CategoryUnauthorized, Message: err.Error(), Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	v, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(req)
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			return nil, &Error{StatusCode: http.StatusServiceUnavailable, Category: CategoryUnavailable, Message: "circuit breaker open", Err: err}
		}
		c.log.Warn().Err(err).Str("method", r.method).Str("endpoint", r.endpoint).Msg("api request failed")
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Category: CategoryTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Category: CategoryTransport, Message: "read response body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newResponseError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrNoToken
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (c *Client) authenticated() bool {
	return c.tokens != nil
}

// url joins endpoint to the base URL and appends params.
func (c *Client) url(endpoint string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
