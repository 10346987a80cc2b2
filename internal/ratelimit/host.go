// Package ratelimit spaces out requests to the same upstream host across
// concurrently running item pipelines.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxSlowdown bounds how far repeated 429s can stretch a host's spacing.
const MaxSlowdown = 8

// HostLimiter enforces a minimum delay between requests to the same host.
// Each host gets its own token bucket of size one, so the first request is
// immediate and later ones are spaced by at least the current delay. On a 429
// the host's spacing doubles (up to MaxSlowdown times the base); successes
// relax it back toward the base.
type HostLimiter struct {
	mu    sync.Mutex
	base  time.Duration
	hosts map[string]*hostState
}

type hostState struct {
	limiter *rate.Limiter
	delay   time.Duration
	last    time.Time
}

// NewHostLimiter creates a limiter with the given minimum per-host spacing.
// A zero delay disables spacing.
func NewHostLimiter(delay time.Duration) *HostLimiter {
	if delay < 0 {
		delay = 0
	}
	return &HostLimiter{
		base:  delay,
		hosts: make(map[string]*hostState),
	}
}

func (h *HostLimiter) state(host string) *hostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[host]
	if !ok {
		st = &hostState{limiter: rate.NewLimiter(limitFor(h.base), 1), delay: h.base}
		h.hosts[host] = st
	}
	return st
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Wait blocks until a request to host may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	st := h.state(host)
	if err := st.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "ratelimit: wait for %s", host)
	}
	h.mu.Lock()
	st.last = time.Now()
	h.mu.Unlock()
	return nil
}

// Backoff doubles the spacing for host after a 429.
func (h *HostLimiter) Backoff(host string) {
	st := h.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.base <= 0 {
		return
	}
	next := st.delay * 2
	if ceiling := h.base * MaxSlowdown; next > ceiling {
		next = ceiling
	}
	if next == st.delay {
		return
	}
	st.delay = next
	st.limiter.SetLimit(limitFor(next))
	zap.L().Warn("ratelimit: slowing host after 429",
		zap.String("host", host),
		zap.Duration("delay", next),
	)
}

// Recover shortens the spacing for host by 20% after a success, never below
// the base delay.
func (h *HostLimiter) Recover(host string) {
	st := h.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	if st.delay <= h.base {
		return
	}
	next := time.Duration(float64(st.delay) * 0.8)
	if next < h.base {
		next = h.base
	}
	st.delay = next
	st.limiter.SetLimit(limitFor(next))
}

// Delay returns the current spacing for host.
func (h *HostLimiter) Delay(host string) time.Duration {
	st := h.state(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	return st.delay
}

// LastRequest returns when a request to host was last let through, or the
// zero time if none has been.
func (h *HostLimiter) LastRequest(host string) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.hosts[host]; ok {
		return st.last
	}
	return time.Time{}
}
