// Package fetcher wraps a transport Fetcher with per-host throttling and retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/setops"
)

// Throttle spaces requests per host.
type Throttle interface {
	Wait(ctx context.Context, rawURL string) (waited time.Duration, err error)
}

// Client fetches URLs through a throttle with bounded retries.
type Client struct {
	fetcher  setops.Fetcher
	throttle Throttle
	sleeper  setops.Sleeper
	policy   RetryPolicy
	logger   *zap.Logger
}

// NewClient wires a retrying client.
func NewClient(f setops.Fetcher, throttle Throttle, sleeper setops.Sleeper, policy RetryPolicy, logger *zap.Logger) *Client {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Client{
		fetcher:  f,
		throttle: throttle,
		sleeper:  sleeper,
		policy:   policy,
		logger:   logging.OrNop(logger),
	}
}

// FetchWithRetry fetches rawURL, returning the response and the number of attempts used.
// attempts <= 0 falls back to the policy default.
func (c *Client) FetchWithRetry(ctx context.Context, rawURL string, attempts int) (setops.FetchResponse, int, error) {
	if attempts <= 0 {
		attempts = c.policy.MaxAttempts
	}
	var (
		lastErr error
		used    int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if _, err := c.throttle.Wait(ctx, rawURL); err != nil {
			return setops.FetchResponse{}, attempt, setops.Wrap(setops.KindFetch, "fetch aborted", err)
		}
		used = attempt
		resp, err := c.fetcher.Fetch(ctx, setops.FetchRequest{URL: rawURL})
		if err == nil {
			metrics.ObserveFetchAttempt(rawURL, "success")
			return resp, attempt, nil
		}
		lastErr = err
		metrics.ObserveFetchAttempt(rawURL, outcomeLabel(err))
		if !c.policy.ShouldRetry(err, attempt, attempts) {
			break
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Debug("fetch attempt failed; retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return setops.FetchResponse{}, attempt, setops.Wrap(setops.KindFetch, "fetch aborted", err)
		}
	}
	return setops.FetchResponse{}, used, setops.Wrap(setops.KindFetch,
		fmt.Sprintf("fetch %s failed", rawURL), lastErr)
}

// Fetch satisfies setops.Fetcher using the default attempt budget.
func (c *Client) Fetch(ctx context.Context, request setops.FetchRequest) (setops.FetchResponse, error) {
	resp, _, err := c.FetchWithRetry(ctx, request.URL, 0)
	return resp, err
}

func outcomeLabel(err error) string {
	var statusErr *setops.StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

// StatusCode extracts the HTTP status carried by a fetch failure, or 0.
func StatusCode(err error) int {
	var statusErr *setops.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
