// Package ratelimit enforces a per-identity request budget over a rolling
// window. State is in-process; each server instance enforces its own budget.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/vestiapp/vesti/pkg/utils"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter tracks one token bucket per identity. Buckets idle for a full
// window are evicted.
type Limiter struct {
	limiters     *utils.TTLMap[string, *rate.Limiter]
	limiterMutex sync.Mutex
	limit        rate.Limit
	burst        int
}

// New creates a limiter allowing requestsPerWindow requests per window for
// each identity.
func New(requestsPerWindow int, window time.Duration) *Limiter {
	if requestsPerWindow < 1 {
		requestsPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Limiter{
		limiters: utils.NewTTLMap[string, *rate.Limiter](window),
		limit:    rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:    requestsPerWindow,
	}
}

// Check consumes one request from the identity's budget if available.
func (l *Limiter) Check(identity string) Decision {
	limiter := l.getLimiter(identity)
	now := time.Now()

	allowed := limiter.AllowN(now, 1)

	tokens := limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}

	resetAt := now
	if tokens < 1 {
		// Time until the next whole token refills
		wait := time.Duration((1 - tokens) / float64(l.limit) * float64(time.Second))
		resetAt = now.Add(wait)
	}

	return Decision{
		Allowed:   allowed,
		Remaining: int(math.Floor(tokens)),
		ResetAt:   resetAt,
	}
}

// getLimiter retrieves or creates the bucket for an identity.
func (l *Limiter) getLimiter(identity string) *rate.Limiter {
	if limiter, exists := l.limiters.Get(identity); exists {
		return limiter
	}

	l.limiterMutex.Lock()
	defer l.limiterMutex.Unlock()

	if limiter, exists := l.limiters.Get(identity); exists {
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Set(identity, limiter)

	return limiter
}
