// Package engine fans out per-entity fetches under a shared rate
// limiter and a bounded concurrency cap, yielding outcomes in
// completion order.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kolikaran1992/reddit-watcher/internal/ratelimit"
)

// Outcome is the result of one entity's fetch. Exactly one of Payload
// and Err is set; a nil Payload with a nil Err is an empty but
// successful result.
type Outcome struct {
	Key     string
	Payload any
	Err     error
}

// FetchFunc performs the external fetch for one entity key.
type FetchFunc func(ctx context.Context, key string) (any, error)

// Config bounds one fan-out run.
type Config struct {
	// Workers caps simultaneously in-flight tasks. The limiter is
	// acquired inside the gated section, so Workers bounds fetch and
	// token-wait occupancy jointly.
	Workers int
	// Limiter is shared by all workers of the run.
	Limiter *ratelimit.Limiter
	// FetchTimeout bounds each entity's fetch; expiry becomes a failure
	// outcome rather than stalling the run. Zero disables the bound.
	FetchTimeout time.Duration
}

// Collect launches one task per key and returns a channel that yields
// each Outcome as soon as that entity finishes, in arbitrary completion
// order. The channel is closed after every task has completed; it is
// buffered for the whole batch so slow consumers never block fetch
// progress.
//
// Errors and panics are converted to failure outcomes at the task
// boundary; they never abort sibling tasks.
func Collect(ctx context.Context, keys []string, cfg Config, fetch FetchFunc) <-chan Outcome {
	out := make(chan Outcome, len(keys))

	go func() {
		defer close(out)

		g := new(errgroup.Group)
		if cfg.Workers > 0 {
			g.SetLimit(cfg.Workers)
		}

		for _, key := range keys {
			g.Go(func() error {
				out <- runOne(ctx, key, cfg, fetch)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func runOne(ctx context.Context, key string, cfg Config, fetch FetchFunc) (o Outcome) {
	o.Key = key
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("fetch task panicked",
				zap.String("key", key),
				zap.Any("panic", r),
			)
			o = Outcome{Key: key, Err: eris.Errorf("engine: fetch %s panicked: %v", key, r)}
		}
	}()

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Acquire(ctx); err != nil {
			o.Err = err
			return o
		}
	}

	fctx := ctx
	if cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, cfg.FetchTimeout)
		defer cancel()
	}

	payload, err := fetch(fctx, key)
	if err != nil {
		o.Err = err
		return o
	}
	o.Payload = payload
	return o
}
