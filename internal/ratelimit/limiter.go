// Package ratelimit implements the token-bucket limiter shared by all
// workers of one collection run.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Limiter is a token bucket allowing at most MaxCalls acquisitions per
// Period. Tokens regenerate continuously; the bucket never holds more
// than MaxCalls tokens at once.
//
// The mutex is held across the retry sleep, so at most one waiter owns
// the bucket state at any time and waiters are granted tokens one by
// one. Elapsed time is re-read on every cycle because a previous waiter
// may have drained tokens while this one slept.
type Limiter struct {
	mu        sync.Mutex
	maxCalls  float64
	period    time.Duration
	allowance float64
	lastCheck time.Time
	jitter    float64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithJitter perturbs each refill computation by a symmetric random
// factor of up to frac (e.g. 0.1 for ±10%), desynchronizing limiters
// running in parallel processes. Sleep durations are still derived from
// the un-jittered rate.
func WithJitter(frac float64) Option {
	return func(l *Limiter) { l.jitter = frac }
}

// WithColdStart makes the bucket start empty instead of full, smoothing
// the first burst of a run across the whole period.
func WithColdStart() Option {
	return func(l *Limiter) { l.allowance = 0 }
}

// New creates a Limiter granting maxCalls tokens per period. The bucket
// starts full, so the first maxCalls acquisitions do not sleep.
func New(maxCalls int, period time.Duration, opts ...Option) (*Limiter, error) {
	if maxCalls <= 0 {
		return nil, eris.Errorf("ratelimit: max calls must be positive, got %d", maxCalls)
	}
	if period <= 0 {
		return nil, eris.Errorf("ratelimit: period must be positive, got %s", period)
	}

	l := &Limiter{
		maxCalls:  float64(maxCalls),
		period:    period,
		allowance: float64(maxCalls),
		lastCheck: time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until a token is available, consumes it and returns.
// It returns an error only when ctx is cancelled before a token is
// granted.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := time.Now()
		elapsed := now.Sub(l.lastCheck)
		l.lastCheck = now

		rate := l.maxCalls / l.period.Seconds()
		if l.jitter > 0 {
			rate *= 1 + (rand.Float64()*2-1)*l.jitter
		}
		l.allowance += elapsed.Seconds() * rate
		if l.allowance > l.maxCalls {
			l.allowance = l.maxCalls
		}

		if l.allowance >= 1 {
			l.allowance--
			return nil
		}

		// Sleep for the un-jittered deficit.
		sleep := time.Duration((1 - l.allowance) * float64(l.period) / l.maxCalls)
		zap.L().Debug("rate limiter sleeping",
			zap.Duration("sleep", sleep),
			zap.Float64("allowance", l.allowance),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "ratelimit: acquire")
		case <-timer.C:
		}
	}
}
