// Package apiclient provides a reusable HTTP client for the SynergyFlow
// API with context management, connection pooling, an interceptor chain,
// and a uniform retry/backoff policy.
//
// Transient failures (network errors and 5xx responses) are retried with
// exponential backoff; client errors are surfaced immediately as typed
// errors carrying the server's problem-detail payload.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests if not specified.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is how many times a failed request is retried by default.
	DefaultRetries = 2

	// DefaultRetryDelayBase is the base delay for exponential backoff.
	DefaultRetryDelayBase = 200 * time.Millisecond

	// Default connection pool settings
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second

	// Default timeouts for various HTTP operations
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultDialTimeout           = 30 * time.Second
	defaultDialKeepAlive         = 30 * time.Second

	// Default User-Agent
	defaultUserAgent = "SynergyFlow-Client"
)

// RequestInterceptor runs before a request is sent and may rewrite it in
// place (URL, headers, body metadata).
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor runs after a successful (2xx) response and may
// replace it. It never runs for failed or retried attempts.
type ResponseInterceptor func(resp *http.Response) (*http.Response, error)

// RetryPredicate decides whether a response or transport error warrants
// another attempt. Exactly one of resp and err is non-nil.
type RetryPredicate func(resp *http.Response, err error) bool

// RequestOptions overrides the client's retry policy for a single call.
type RequestOptions struct {
	// Retries is the number of retries after the first attempt.
	// Negative means "use the client default".
	Retries int

	// RetryDelayBase is the backoff base; delay before attempt k is
	// RetryDelayBase * 2^k. Zero means "use the client default".
	RetryDelayBase time.Duration

	// RetryOn replaces the default retry predicate when non-nil.
	RetryOn RetryPredicate

	// Header entries are added to the request before interceptors run.
	Header http.Header
}

// Config holds configuration for creating an API client.
type Config struct {
	// BaseURL is prefixed to every endpoint path.
	BaseURL string

	// DefaultTimeout is the timeout applied if the request context has no deadline.
	DefaultTimeout time.Duration

	// UserAgent is added to all requests.
	UserAgent string

	// Retries is the default number of retries (DefaultRetries if negative).
	Retries int

	// RetryDelayBase is the default backoff base.
	RetryDelayBase time.Duration

	// MaxIdleConns controls connection pool size (default: 100).
	MaxIdleConns int

	// MaxIdleConnsPerHost controls per-host connection pool (default: 10).
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections stay in pool (default: 90s).
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:      DefaultTimeout,
		UserAgent:           defaultUserAgent,
		Retries:             DefaultRetries,
		RetryDelayBase:      DefaultRetryDelayBase,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
}

// Client executes API requests with retries and interceptors.
// Thread-safe for concurrent use; the token and interceptor chain are
// process-wide client state guarded by a mutex and should be treated as
// read-mostly while requests are in flight.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	defaultTimeout time.Duration
	userAgent      string
	retries        int
	retryDelayBase time.Duration

	mu                   sync.RWMutex
	authToken            string
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// New creates a new API client with the given configuration.
// Accepts nil cfg (falls back to DefaultConfig) and does not mutate the
// caller's config.
func New(cfg *Config) *Client {
	var c Config
	if cfg == nil {
		c = DefaultConfig()
	} else {
		c = *cfg
		if c.DefaultTimeout == 0 {
			c.DefaultTimeout = DefaultTimeout
		}
		if c.UserAgent == "" {
			c.UserAgent = defaultUserAgent
		}
		if c.Retries < 0 {
			c.Retries = DefaultRetries
		}
		if c.RetryDelayBase == 0 {
			c.RetryDelayBase = DefaultRetryDelayBase
		}
		if c.MaxIdleConns == 0 {
			c.MaxIdleConns = defaultMaxIdleConns
		}
		if c.MaxIdleConnsPerHost == 0 {
			c.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
		}
		if c.IdleConnTimeout == 0 {
			c.IdleConnTimeout = defaultIdleConnTimeout
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          c.MaxIdleConns,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// No default timeout, handled per-request with context
		},
		baseURL:        strings.TrimRight(c.BaseURL, "/"),
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
		retries:        c.Retries,
		retryDelayBase: c.RetryDelayBase,
	}
}

// SetAuthToken sets the bearer token injected into requests that do not
// carry their own Authorization header. Pass "" to clear it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AddRequestInterceptor appends an interceptor run before each send,
// in registration order.
func (c *Client) AddRequestInterceptor(interceptor RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInterceptors = append(c.requestInterceptors, interceptor)
}

// AddResponseInterceptor appends an interceptor run on each successful
// response, in registration order.
func (c *Client) AddResponseInterceptor(interceptor ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseInterceptors = append(c.responseInterceptors, interceptor)
}

// shouldRetryDefault retries network errors and 5xx responses; client
// errors are never retried.
func shouldRetryDefault(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode >= 500 && resp.StatusCode < 600
}

// Do executes a request against the given endpoint and decodes the
// response body into out (which may be nil to discard it).
//
// Body handling on success:
//   - 204 or empty body: out is left untouched
//   - JSON content type: body is unmarshaled into out
//   - anything else: body is stored when out is a *string, discarded otherwise
//
// Failures are *APIError values when the server produced a response, or
// transport errors otherwise. The retry loop honors ctx cancellation
// between attempts.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any, opts *RequestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Apply default timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	retries := c.retries
	delayBase := c.retryDelayBase
	retryOn := RetryPredicate(shouldRetryDefault)
	var extraHeader http.Header
	if opts != nil {
		if opts.Retries >= 0 {
			retries = opts.Retries
		}
		if opts.RetryDelayBase > 0 {
			delayBase = opts.RetryDelayBase
		}
		if opts.RetryOn != nil {
			retryOn = opts.RetryOn
		}
		extraHeader = opts.Header
	}

	url := c.baseURL + endpoint

	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, method, url, payload, extraHeader)
		if err == nil && resp.StatusCode < 400 {
			return c.decodeSuccess(resp, out)
		}

		retryable := retryOn(resp, err)
		if resp != nil {
			// The failure body is only needed on the final attempt
			if retryable && attempt < retries {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}

		if !retryable || attempt >= retries {
			if err != nil {
				return fmt.Errorf("request to %s failed after %d attempt(s): %w", endpoint, attempt+1, err)
			}
			return newAPIError(resp)
		}

		// Exponential backoff: delayBase * 2^attempt, abandoned on cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delayBase << attempt):
		}
	}
}

// attempt performs one network attempt, including interceptor chains.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, extraHeader http.Header) (*http.Response, error) {
	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range extraHeader {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.mu.RLock()
	token := c.authToken
	reqInterceptors := c.requestInterceptors
	c.mu.RUnlock()

	if token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for _, interceptor := range reqInterceptors {
		if err := interceptor(req); err != nil {
			return nil, fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	return c.httpClient.Do(req)
}

// decodeSuccess runs response interceptors and decodes the body into out.
func (c *Client) decodeSuccess(resp *http.Response, out any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	c.mu.RLock()
	respInterceptors := c.responseInterceptors
	c.mu.RUnlock()

	for _, interceptor := range respInterceptors {
		next, err := interceptor(resp)
		if err != nil {
			return fmt.Errorf("response interceptor failed: %w", err)
		}
		if next != nil {
			resp = next
		}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) == 0 || out == nil {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
		return nil
	}

	if s, ok := out.(*string); ok {
		*s = string(data)
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, out any, opts *RequestOptions) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts *RequestOptions) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts)
}

// Close closes idle connections in the connection pool.
// Should be called when the client is no longer needed.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
