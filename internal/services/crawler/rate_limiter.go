package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

// HostLimiter spaces requests to the same host. Different hosts never wait on each other.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

// NewHostLimiter allows one request per interval per host; interval <= 0 disables limiting
func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait blocks until rawURL's host may be contacted again, or ctx ends
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	host := common.HostOf(rawURL)
	if host == "" {
		return ctx.Err()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
