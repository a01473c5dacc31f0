// Package ratelimit throttles public intake per client IP with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an idle client's bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewIPLimiter allows perMinute requests per IP on average with bursts of up
// to burst requests.
func NewIPLimiter(perMinute, burst int) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idleTTL:  DefaultIdleTTL,
	}
}

func (l *IPLimiter) visitorFor(ip string, now time.Time) *visitor {
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v
}

// Allow takes one token for ip at now. A rejected call consumes nothing.
func (l *IPLimiter) Allow(ip string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim := l.visitorFor(ip, now).limiter
	res := Result{Limit: l.burst}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return res
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		return res
	}
	res.Allowed = true
	res.Remaining = max(int(lim.TokensAt(now)), 0)
	return res
}

// Sweep drops buckets idle since before now minus the idle TTL and returns
// how many were removed.
func (l *IPLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets every interval until ctx is done. report, when
// non-nil, receives the number of tracked clients after each sweep.
func (l *IPLimiter) Run(ctx context.Context, interval time.Duration, report func(tracked int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Sweep(now)
			if report != nil {
				report(l.Len())
			}
		}
	}
}

// Len reports how many clients are tracked.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
