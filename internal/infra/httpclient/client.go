package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"engagement-shop/internal/config"
	"engagement-shop/internal/metrics"

	"golang.org/x/time/rate"
)

// RequestFunc builds a fresh request for every attempt so bodies can be replayed.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Response is a fully read upstream answer.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client executes outbound calls with a per-call timeout, an outbound limiter
// and a capped fixed-interval retry on transport errors and 5xx answers.
type Client struct {
	upstream      string
	http          *http.Client
	limiter       *rate.Limiter
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	logger        *slog.Logger
}

func New(upstream string, cfg config.HTTPClientConfig, logger *slog.Logger) *Client {
	rps := rate.Limit(cfg.RateLimit.RPS)
	if cfg.RateLimit.RPS <= 0 {
		rps = rate.Inf
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		upstream:      upstream,
		http:          &http.Client{},
		limiter:       rate.NewLimiter(rps, burst),
		timeout:       cfg.Timeout,
		maxRetries:    max(cfg.MaxRetries, 0),
		retryInterval: cfg.RetryInterval,
		logger:        logger,
	}
}

// Do runs the request. Non-2xx answers are returned as a Response, not an error;
// err is set only when no answer could be obtained.
func (c *Client) Do(ctx context.Context, operation string, build RequestFunc) (*Response, error) {
	return c.observe(ctx, operation, build, c.maxRetries)
}

// DoOnce is Do without retries, for calls the upstream cannot deduplicate.
func (c *Client) DoOnce(ctx context.Context, operation string, build RequestFunc) (*Response, error) {
	return c.observe(ctx, operation, build, 0)
}

func (c *Client) observe(ctx context.Context, operation string, build RequestFunc, retries int) (*Response, error) {
	started := time.Now()
	resp, err := c.do(ctx, operation, build, retries)

	result := metrics.Result(err)
	if err == nil && !resp.OK() {
		result = fmt.Sprintf("http_%d", resp.StatusCode/100*100)
	}
	metrics.UpstreamRequests.WithLabelValues(c.upstream, operation, result).Inc()
	metrics.UpstreamDuration.WithLabelValues(c.upstream, operation).Observe(time.Since(started).Seconds())

	return resp, err
}

func (c *Client) do(ctx context.Context, operation string, build RequestFunc, retries int) (*Response, error) {
	var (
		resp    *Response
		lastErr error
	)

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying upstream call",
				"upstream", c.upstream,
				"operation", operation,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryInterval):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiting: %w", err)
		}

		resp, lastErr = c.attempt(ctx, build)
		if lastErr == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("upstream answered %d", resp.StatusCode)
		}
	}

	if resp != nil {
		return resp, nil
	}
	return nil, fmt.Errorf("%s %s: %w", c.upstream, operation, lastErr)
}

func (c *Client) attempt(ctx context.Context, build RequestFunc) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}
