package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"optionsflow/pkg/errors"
)

// Limiter throttles calls to one upstream API
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a limiter allowing rps requests per second with the given burst.
// rps <= 0 disables limiting.
func NewLimiter(name string, rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}

	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
	}
}

// Wait blocks until the limiter allows the request or ctx ends
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow checks if a request is allowed without blocking
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// HostLimiters hands out one limiter per upstream host
type HostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	rps      float64
	burst    int
}

// NewHostLimiters creates per-host limiters sharing the same rate
func NewHostLimiters(rps float64, burst int) *HostLimiters {
	return &HostLimiters{
		limiters: make(map[string]*Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// For returns the limiter for host, creating it on first use
func (h *HostLimiters) For(host string) *Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l, ok := h.limiters[host]; ok {
		return l
	}
	l := NewLimiter(host, h.rps, h.burst)
	h.limiters[host] = l
	return l
}
