package client

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/cache"
	"nbapredictions/scheduler/internal/metrics"
)

// Options configures the NBA stats client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimitDelay time.Duration
	RetryAttempts  int
	RetryBase      time.Duration
	RetryJitter    time.Duration

	// Cache is optional; when nil every call hits the provider.
	Cache        cache.Cache
	TTLStandings time.Duration
	TTLHistory   time.Duration
}

// Client is the NBA stats API client. The provider is aggressively
// rate-limited and flaky, so every request is preceded by a fixed delay and
// failed requests are retried with a linearly growing backoff.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateDelay   time.Duration
	maxAttempts int
	retryBase   time.Duration
	retryJitter time.Duration

	cache        cache.Cache
	ttlStandings time.Duration
	ttlHistory   time.Duration
}

// NewClient creates a new NBA stats API client.
func NewClient(opts Options) *Client {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}

	return &Client{
		baseURL:      opts.BaseURL,
		rateDelay:    opts.RateLimitDelay,
		maxAttempts:  opts.RetryAttempts,
		retryBase:    opts.RetryBase,
		retryJitter:  opts.RetryJitter,
		cache:        opts.Cache,
		ttlStandings: opts.TTLStandings,
		ttlHistory:   opts.TTLHistory,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// fetch performs a GET request against one stats endpoint with rate limiting
// and retries. Backoff grows linearly with the retry index plus a random
// jitter so parallel deployments don't stampede the provider in lockstep.
// After the final attempt the last error is returned as-is.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, endpoint)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt)*c.retryBase + c.jitter()
			log.Info().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying API request after backoff")
			metrics.RecordAPIRetry(endpoint)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Fixed courtesy delay before every request, not just retries.
		if c.rateDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.rateDelay):
			}
		}

		start := time.Now()
		body, status, err := c.doRequest(ctx, reqURL, params)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			metrics.RecordAPICall(endpoint, "error", elapsed)
			lastErr = err
			continue
		}

		switch status {
		case http.StatusOK:
			metrics.RecordAPICall(endpoint, "success", elapsed)
			log.Debug().
				Str("endpoint", endpoint).
				Int("size", len(body)).
				Msg("API request successful")
			return body, nil

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			metrics.RecordAPICall(endpoint, "retryable", elapsed)
			lastErr = fmt.Errorf("API returned retryable status %d for %s", status, endpoint)
			log.Warn().
				Str("endpoint", endpoint).
				Int("status", status).
				Int("attempt", attempt+1).
				Msg("Received retryable error, will retry")

		default:
			metrics.RecordAPICall(endpoint, "failed", elapsed)
			return nil, fmt.Errorf("API returned status %d for %s", status, endpoint)
		}
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, reqURL string, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()

	// The provider rejects requests without browser-like headers.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://www.nba.com/")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-nba-stats-origin", "stats")
	req.Header.Set("x-nba-stats-token", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// fetchCached reads through the cache when one is configured.
func (c *Client) fetchCached(ctx context.Context, key string, ttl time.Duration, endpoint string, params url.Values) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, key); ok {
			metrics.RecordCacheHit()
			return body, nil
		}
		metrics.RecordCacheMiss()
	}

	body, err := c.fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, body, ttl)
	}
	return body, nil
}

func (c *Client) jitter() time.Duration {
	if c.retryJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(c.retryJitter)))
}

// SeasonForDate returns the NBA season string ("2023-24") containing the
// given date. Seasons roll over on October 1st.
func SeasonForDate(t time.Time) string {
	year := t.Year()
	if t.Month() < time.October {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}
