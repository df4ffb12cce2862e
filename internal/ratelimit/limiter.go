// Package ratelimit holds a per-tenant token bucket guard for the
// webhook server. The limiter fails open: when disabled or over budget
// the caller still returns 200 to the provider, it just stops doing
// work for the burst.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter keeps one token bucket per account.
type TenantLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	enabled  bool
}

// New creates a limiter allowing rps events per second with the given
// burst per account.
func New(enabled bool, rps float64, burst int) *TenantLimiter {
	return &TenantLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		enabled:  enabled,
	}
}

// Allow reports whether the account may process one more event now.
func (l *TenantLimiter) Allow(accountID string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[accountID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[accountID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
