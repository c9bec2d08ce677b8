package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Second,
		MaxWait:     4 * time.Second,
		Multiplier:  2.0,
	}
}

// Client performs GET requests with retry, optional rate limiting and
// mirror fallback.
type Client struct {
	client  *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
	header  http.Header
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout bounds a single attempt, not the whole retry sequence.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLimiter makes every attempt wait for a token from l.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func New(opts ...Option) *Client {
	c := &Client{
		client: &http.Client{Timeout: 20 * time.Second},
		retry:  DefaultRetryConfig(),
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// Get fetches url, retrying transient failures with exponential backoff
// and jitter.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := range c.retry.MaxAttempts {
		body, err := c.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Only the caller's context stops retries. A per-attempt client
		// timeout also matches context.DeadlineExceeded and is retried.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !shouldRetry(err) {
			return nil, err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}

	return nil, lastErr
}

// GetMirrored fetches path from each mirror in turn, beginning with
// mirrors[start] and wrapping around. It returns the body and the index of
// the mirror that served it.
func (c *Client) GetMirrored(ctx context.Context, mirrors []string, start int, path string) ([]byte, int, error) {
	if len(mirrors) == 0 {
		return nil, -1, ErrAllMirrorsFailed
	}
	if start < 0 || start >= len(mirrors) {
		start = 0
	}

	var errs []error
	for i := range mirrors {
		idx := (start + i) % len(mirrors)
		url := strings.TrimRight(mirrors[idx], "/") + "/" + strings.TrimLeft(path, "/")

		body, err := c.Get(ctx, url)
		if err == nil {
			return body, idx, nil
		}
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, -1, fmt.Errorf("%w: %s: %w", ErrAllMirrorsFailed, path, errors.Join(errs...))
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &ErrHTTPStatus{URL: url, Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

func shouldRetry(err error) bool {
	var st *ErrHTTPStatus
	if errors.As(err, &st) {
		return st.Transient()
	}

	// Transport errors are treated as transient.
	return true
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := float64(c.retry.InitialWait) * math.Pow(c.retry.Multiplier, float64(attempt))
	if c.retry.MaxWait > 0 && wait > float64(c.retry.MaxWait) {
		wait = float64(c.retry.MaxWait)
	}

	// ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
