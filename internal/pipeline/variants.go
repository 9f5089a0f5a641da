package pipeline

import (
	"context"

	"github.com/kolikaran1992/reddit-watcher/internal/batch"
	"github.com/kolikaran1992/reddit-watcher/internal/config"
	"github.com/kolikaran1992/reddit-watcher/internal/engine"
	"github.com/kolikaran1992/reddit-watcher/internal/model"
	"github.com/kolikaran1992/reddit-watcher/internal/ratelimit"
	"github.com/kolikaran1992/reddit-watcher/internal/store"
	"github.com/kolikaran1992/reddit-watcher/pkg/reddit"
)

// limiterJitter desynchronizes limiters across the cron-scheduled
// pipelines sharing one API budget.
const limiterJitter = 0.1

func engineConfig(cfg config.PipelineConfig) (engine.Config, error) {
	limiter, err := ratelimit.New(cfg.LimiterMaxCalls, cfg.LimiterPeriod(),
		ratelimit.WithJitter(limiterJitter))
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:      cfg.Workers,
		Limiter:      limiter,
		FetchTimeout: cfg.FetchTimeout(),
	}, nil
}

// HotPosts builds the hot-posts pipeline: marketable subreddits in
// batches, top hot posts per subreddit, duplicate-safe post inserts.
func HotPosts(cfg config.PipelineConfig, session reddit.Session) (*Variant, error) {
	eng, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Variant{
		Name:      "hot-posts",
		Batches:   batch.NewStore(cfg.BatchFile),
		BatchSize: cfg.BatchSize,
		Population: func(ctx context.Context, st store.Store) ([]string, error) {
			return st.ListMarketableNames(ctx)
		},
		Fetch: func(ctx context.Context, key string) (any, error) {
			return reddit.NewCollector(session, key).CollectHotPosts(ctx, cfg.FetchLimit)
		},
		Write:  WritePosts,
		Engine: eng,
	}, nil
}

// Snapshot builds the activity-snapshot pipeline: every subreddit in
// batches, one windowed activity row per subreddit per run.
func Snapshot(cfg config.PipelineConfig, session reddit.Session) (*Variant, error) {
	eng, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Variant{
		Name:      "snapshot",
		Batches:   batch.NewStore(cfg.BatchFile),
		BatchSize: cfg.BatchSize,
		Population: func(ctx context.Context, st store.Store) ([]string, error) {
			return st.ListSubredditNames(ctx)
		},
		Fetch: func(ctx context.Context, key string) (any, error) {
			return reddit.NewCollector(session, key).CollectActivity(ctx, cfg.FetchLimit, cfg.Window())
		},
		Write:  WriteSnapshot,
		Engine: eng,
	}, nil
}

// MetaUpdate builds the meta-update pipeline. It has no batch file:
// each run picks up to BatchSize subreddits that still lack a meta row.
// Private or banned subreddits yield an all-null row so they are not
// selected again on the next run.
func MetaUpdate(cfg config.PipelineConfig, session reddit.Session) (*Variant, error) {
	eng, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Variant{
		Name:      "meta-update",
		BatchSize: cfg.BatchSize,
		Population: func(ctx context.Context, st store.Store) ([]string, error) {
			subs, err := st.SubredditsMissingMeta(ctx, cfg.BatchSize)
			if err != nil {
				return nil, err
			}
			names := make([]string, len(subs))
			for i, sub := range subs {
				names[i] = sub.Name
			}
			return names, nil
		},
		Fetch: func(ctx context.Context, key string) (any, error) {
			meta, err := reddit.NewCollector(session, key).CollectMeta(ctx)
			if reddit.IsForbidden(err) {
				return &model.Meta{}, nil
			}
			return meta, err
		},
		Write:  WriteMeta,
		Engine: eng,
	}, nil
}
