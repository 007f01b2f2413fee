// Package ratelimit throttles verification-code requests per email so the
// backend's single-use codes can't be farmed.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type Limiter struct {
	mu      sync.Mutex
	perKey  map[string]*entry
	rate    rate.Limit
	burst   int
	maxIdle time.Duration
}

// New builds a limiter allowing ratePerMin requests per minute per key
// with the given burst.
func New(ratePerMin int, burst int) *Limiter {
	return &Limiter{
		perKey:  map[string]*entry{},
		rate:    rate.Limit(float64(ratePerMin) / 60.0),
		burst:   burst,
		maxIdle: 30 * time.Minute,
	}
}

// Allow reports whether key may proceed. Idle entries are pruned inline so
// the map doesn't grow without bound.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, e := range l.perKey {
		if now.Sub(e.lastAccess) > l.maxIdle {
			delete(l.perKey, k)
		}
	}

	e, ok := l.perKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.perKey[key] = e
	}
	e.lastAccess = now
	return e.limiter.Allow()
}
