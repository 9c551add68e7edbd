// Package tmdb implements the authenticated detail API client: rate-limited
// JSON fetches with retry, backoff and structured error classification.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/ratelimit"
	"github.com/screenarc/tmdb-harvester/internal/telemetry"
)

const appendToResponse = "append_to_response=credits,external_ids,keywords,watch/providers,translations,similar"

const defaultRetryAfter = 5 * time.Second

// ClientConfig holds the construction parameters for a Client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client fetches detail payloads from the API. It owns its http.Client; the
// caller constructs it once around the processing lifecycle and closes it on
// shutdown.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	policy  *ExponentialRetryPolicy
	logger  *zap.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a Client with its own transport session.
func NewClient(cfg ClientConfig, limiter *ratelimit.Limiter, policy *ExponentialRetryPolicy, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if policy == nil {
		policy = NewExponentialRetryPolicy(3, 4*time.Second, 10*time.Second)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// MovieDetails fetches one movie with all appended sub-resources.
func (c *Client) MovieDetails(ctx context.Context, id int64) (*Movie, error) {
	var m Movie
	endpoint := fmt.Sprintf("movie/%d", id)
	if err := c.getJSON(ctx, endpoint, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// TVSeriesDetails fetches one series with all appended sub-resources.
func (c *Client) TVSeriesDetails(ctx context.Context, id int64) (*TVSeries, error) {
	var s TVSeries
	endpoint := fmt.Sprintf("tv/%d", id)
	if err := c.getJSON(ctx, endpoint, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// getJSON runs the fetch under the retry policy. Transient failures back off
// exponentially; ErrNotFound and ErrUnauthorized propagate immediately.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.doOnce(ctx, endpoint, out)
		if lastErr == nil {
			return nil
		}
		if !c.policy.ShouldRetry(lastErr, attempt+1) {
			return lastErr
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Warn("retrying detail fetch",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		telemetry.IncFetchRetry()
		if err := c.sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
}

func (c *Client) doOnce(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, appendToResponse)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp)
		c.logger.Warn("rate limited by API",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	telemetry.ObserveFetch(endpointType(endpoint), time.Since(start))
	return nil
}

// retryAfter reads the Retry-After header, defaulting when absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func endpointType(endpoint string) string {
	if len(endpoint) >= 3 && endpoint[:3] == "tv/" {
		return "tv_series"
	}
	return "movie"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
