package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiters hands out one token bucket per client IP.
type Limiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

func NewLimiters(rps float64, burst int) *Limiters {
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *Limiters) Get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()
	return e.lim
}

// Cleanup drops buckets idle for longer than olderThan. A bucket is never
// dropped before it could have refilled, so eviction cannot grant extra tokens.
func (l *Limiters) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rps > 0 {
		if refill := time.Duration(float64(l.burst) / float64(l.rps) * float64(time.Second)); refill > olderThan {
			olderThan = refill
		}
	}
	cutoff := l.now().Add(-olderThan)
	var n int64
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n, nil
}

// RateLimitMiddleware 按客户端 IP 限流；挂在调用方认证之前
func RateLimitMiddleware(limiters *Limiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiters == nil || limiters.rps <= 0 {
			c.Next()
			return
		}
		if !limiters.Get("ip:" + c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			abort(c, apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}
