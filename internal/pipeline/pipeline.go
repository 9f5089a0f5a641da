// Package pipeline orchestrates one collection run: select the batch at
// the cursor, fan out rate-limited fetches, write outcomes as they
// complete, advance the cursor and report a summary.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kolikaran1992/reddit-watcher/internal/batch"
	"github.com/kolikaran1992/reddit-watcher/internal/engine"
	"github.com/kolikaran1992/reddit-watcher/internal/store"
	"github.com/kolikaran1992/reddit-watcher/pkg/slack"
)

// PopulationFunc enumerates the entity keys eligible for a pipeline.
type PopulationFunc func(ctx context.Context, st store.Store) ([]string, error)

// Variant describes one pipeline: where its batch file lives, how to
// enumerate its population, how to fetch one entity and how to persist
// the result. The three production pipelines differ only in these
// parameters.
type Variant struct {
	Name       string
	Batches    *batch.Store // nil when the population is processed directly, without a cursor
	BatchSize  int
	Population PopulationFunc
	Fetch      engine.FetchFunc
	Write      WriteFunc
	Engine     engine.Config
}

// Runner executes pipeline variants against a store and reports run
// summaries through the notifier.
type Runner struct {
	store    store.Store
	notifier *slack.Notifier
}

func NewRunner(st store.Store, notifier *slack.Notifier) *Runner {
	return &Runner{store: st, notifier: notifier}
}

// Run processes one batch of the variant. Per-entity failures are
// counted, not returned: the error is non-nil only for structural
// problems (unreadable snapshot, invalid cursor, population query
// failure) that prevented processing entirely.
func (r *Runner) Run(ctx context.Context, v *Variant) (*Summary, error) {
	start := time.Now()

	keys, snap, err := r.selectKeys(ctx, v)
	if err != nil {
		return nil, err
	}

	sum := newSummary(v.Name, snap, len(keys))
	zap.L().Info("run started",
		zap.String("pipeline", v.Name),
		zap.String("run_id", sum.RunID),
		zap.Int("batch_index", sum.BatchIndex),
		zap.Int("total_batches", sum.TotalBatches),
		zap.Int("keys", len(keys)))

	for out := range engine.Collect(ctx, keys, v.Engine, v.Fetch) {
		if out.Err != nil {
			sum.Failed++
			zap.L().Warn("fetch failed",
				zap.String("pipeline", v.Name),
				zap.String("key", out.Key),
				zap.Error(out.Err))
			continue
		}
		stats, err := v.Write(ctx, r.store, out.Key, out.Payload)
		sum.Inserted += stats.Inserted
		sum.Skipped += stats.Skipped
		if err != nil {
			sum.Failed++
			zap.L().Warn("write failed",
				zap.String("pipeline", v.Name),
				zap.String("key", out.Key),
				zap.Error(err))
			continue
		}
		sum.Succeeded++
	}

	// The cursor moves even when some entities failed: a batch with
	// partial failures still counts as processed. A failed save is
	// logged only; the batch itself was already processed.
	if snap != nil {
		snap.Advance()
		if err := v.Batches.Save(snap); err != nil {
			zap.L().Error("persist cursor",
				zap.String("pipeline", v.Name),
				zap.Error(err))
		}
	}

	sum.Duration = time.Since(start)
	r.notify(ctx, sum)
	zap.L().Info("run finished",
		zap.String("pipeline", v.Name),
		zap.String("run_id", sum.RunID),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("inserted", sum.Inserted),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

// selectKeys resolves the entity keys for this run. Batched variants
// read the batch at the cursor, generating the snapshot from the
// population on first run; cursorless variants enumerate the population
// directly.
func (r *Runner) selectKeys(ctx context.Context, v *Variant) ([]string, *batch.Snapshot, error) {
	if v.Batches == nil {
		keys, err := v.Population(ctx, r.store)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline %s: population", v.Name)
		}
		return keys, nil, nil
	}

	snap, err := r.loadOrGenerate(ctx, v)
	if err != nil {
		return nil, nil, err
	}

	keys, err := snap.Current()
	if errors.Is(err, batch.ErrInvalidCursor) {
		// Reset the cursor so the next invocation can proceed, but
		// report this run as failed.
		zap.L().Error("invalid cursor, resetting",
			zap.String("pipeline", v.Name),
			zap.Int("batch_index", snap.CurrentBatchIndex))
		if saveErr := v.Batches.ResetCursor(snap); saveErr != nil {
			zap.L().Error("persist cursor reset", zap.Error(saveErr))
		}
		return nil, nil, eris.Wrapf(err, "pipeline %s", v.Name)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline %s", v.Name)
	}
	return keys, snap, nil
}

func (r *Runner) loadOrGenerate(ctx context.Context, v *Variant) (*batch.Snapshot, error) {
	if v.Batches.Exists() {
		snap, err := v.Batches.Load()
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline %s", v.Name)
		}
		return snap, nil
	}

	population, err := v.Population(ctx, r.store)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline %s: population", v.Name)
	}
	zap.L().Info("generating batch snapshot",
		zap.String("pipeline", v.Name),
		zap.String("path", v.Batches.Path()),
		zap.Int("population", len(population)),
		zap.Int("batch_size", v.BatchSize))
	snap, err := v.Batches.Generate(population, v.BatchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline %s: generate", v.Name)
	}
	return snap, nil
}

// notify is fire-and-forget: delivery failures are logged, never
// surfaced as run failures.
func (r *Runner) notify(ctx context.Context, sum *Summary) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, sum.Header(), sum.Message()); err != nil {
		zap.L().Warn("notify failed",
			zap.String("pipeline", sum.Pipeline),
			zap.Error(err))
	}
}
