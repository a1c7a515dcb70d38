package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxResponseBytes  = 1 << 20
)

// Config selects the gateway endpoint base and credentials.
type Config struct {
	TestURL  string
	LiveURL  string
	Test     bool
	Username string
	Password string
	// MaxRetries is the number of additional attempts on a network error,
	// HTTP 429 or HTTP 5xx. Zero disables retries.
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	UserAgent  string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithBreaker guards every endpoint with b.
func WithBreaker(b *Breaker) Option {
	return func(c *HTTPClient) { c.breaker = b }
}

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *HTTPClient) { c.logger = l }
}

// HTTPClient posts JSON documents to the gateway with basic authentication.
type HTTPClient struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	breaker    *Breaker
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient validates cfg and builds a client for the selected mode.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	base := cfg.LiveURL
	if cfg.Test {
		base = cfg.TestURL
	}
	if base == "" {
		return nil, errors.New("transport: endpoint base URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("transport: username and password are required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("transport: max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	c := &HTTPClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return c, nil
}

// Test reports whether the client targets the test environment.
func (c *HTTPClient) Test() bool { return c.cfg.Test }

// Post sends body to endpoint. Every attempt of one call carries the same
// Idempotency-Key and is admitted by the breaker separately, so retries stop
// once the circuit opens. A non-2xx reply is returned along with a
// *StatusError; everything that prevents a reply is returned as an *Error.
func (c *HTTPClient) Post(ctx context.Context, endpoint string, body []byte) (*Reply, error) {
	key := uuid.NewString()
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var (
		reply   *Reply
		lastErr error
	)
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, &Error{Endpoint: endpoint, Err: err}
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", key)
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		if c.breaker != nil && !c.breaker.Allow(endpoint) {
			lastErr = ErrCircuitOpen
			break
		}

		r, err := c.do(req)
		if err != nil {
			lastErr = err
			reply = nil
			c.recordFailure(endpoint)
			c.logger.Debug("gateway request failed",
				zap.String("endpoint", endpoint), zap.Int("attempt", attempt+1), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		reply = r
		c.logger.Debug("gateway replied",
			zap.String("endpoint", endpoint), zap.Int("attempt", attempt+1), zap.Int("status", r.StatusCode))
		if retryableStatus(r.StatusCode) {
			c.recordFailure(endpoint)
			continue
		}
		c.recordSuccess(endpoint)
		break
	}

	if reply == nil {
		if lastErr == nil {
			lastErr = errors.New("no response received")
		}
		return nil, &Error{Endpoint: endpoint, Err: lastErr}
	}
	if reply.StatusCode < 200 || reply.StatusCode > 299 {
		return reply, &StatusError{StatusCode: reply.StatusCode, Body: reply.Body}
	}
	return reply, nil
}

func (c *HTTPClient) do(req *http.Request) (*Reply, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Reply{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *HTTPClient) recordFailure(endpoint string) {
	if c.breaker != nil {
		c.breaker.RecordFailure(endpoint)
	}
}

func (c *HTTPClient) recordSuccess(endpoint string) {
	if c.breaker != nil {
		c.breaker.RecordSuccess(endpoint)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
