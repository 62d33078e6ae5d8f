// Package ratelimit paces outbound requests to the archiving service with per-host token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/wayback-archiver/internal/metrics"
)

// Config sets the pace applied to each host. A non-positive RequestsPerSecond disables pacing.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out one token bucket per archive host, so availability lookups and capture
// requests are paced independently.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Limiter{
		limit:   limit,
		burst:   max(cfg.Burst, 1),
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host of rawURL may be contacted or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not pacing delays.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingDelay(host, d)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
