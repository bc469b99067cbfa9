package ratelimit

import (
	"context"
	"sync"
	"time"

	"consultaprocessual/pkg/logger"

	"golang.org/x/time/rate"
)

// Limiter keeps at least Interval between consecutive Wait returns within
// this process. The interval is fixed: failures never change it.
type Limiter struct {
	interval time.Duration
	limiter  *rate.Limiter

	mu     sync.Mutex
	calls  int
	waited time.Duration
}

// New returns a Limiter with burst 1. A non-positive interval disables pacing.
func New(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)

	l.mu.Lock()
	l.calls++
	l.waited += waited
	l.mu.Unlock()

	if waited > 10*time.Millisecond {
		logger.Sugar.Debugf("Rate limiter: waited %s before next request", waited.Round(time.Millisecond))
	}
	return nil
}

func (l *Limiter) Interval() time.Duration { return l.interval }

// Stats reports how many calls passed and the total time spent waiting.
func (l *Limiter) Stats() (calls int, waited time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, l.waited
}
