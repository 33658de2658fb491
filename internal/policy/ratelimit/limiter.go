// Package ratelimit enforces a minimum gap between requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/setops"
)

// DefaultGap is the minimum delay between two requests to one host.
const DefaultGap = 1200 * time.Millisecond

// HostThrottle manages one limiter per host.
type HostThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	gap      time.Duration
	clock    setops.Clock
	sleeper  setops.Sleeper
}

// Config holds throttle configuration.
type Config struct {
	Gap time.Duration
}

// New creates a HostThrottle that reads time from clock and waits through sleeper.
func New(cfg Config, clock setops.Clock, sleeper setops.Sleeper) *HostThrottle {
	gap := cfg.Gap
	if gap < 0 {
		gap = 0
	}
	return &HostThrottle{
		limiters: make(map[string]*rate.Limiter),
		gap:      gap,
		clock:    clock,
		sleeper:  sleeper,
	}
}

// Wait blocks until the host of rawURL may be contacted again and returns the delay served.
// A cancelled context releases the reserved slot so the next caller is not penalized.
func (h *HostThrottle) Wait(ctx context.Context, rawURL string) (time.Duration, error) {
	if h.gap == 0 {
		return 0, nil
	}
	host := hostKey(rawURL)
	limiter := h.limiterFor(host)

	now := h.clock.Now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 0, fmt.Errorf("throttle reserve for %s: burst exceeded", host)
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}
	if err := h.sleeper.Sleep(ctx, delay); err != nil {
		reservation.CancelAt(h.clock.Now())
		return 0, fmt.Errorf("throttle wait for %s: %w", host, err)
	}
	metrics.ObserveThrottleDelay(host, delay)
	return delay, nil
}

func (h *HostThrottle) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.gap), 1)
		h.limiters[host] = limiter
	}
	return limiter
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
