package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
	"github.com/kolikaran1992/reddit-watcher/internal/store"
)

// WriteStats counts what one outcome contributed to the run.
type WriteStats struct {
	Inserted int
	Skipped  int
}

// WriteFunc persists one successful fetch outcome for the entity key.
type WriteFunc func(ctx context.Context, st store.Store, key string, payload any) (WriteStats, error)

// WritePosts inserts fetched posts under their subreddit, skipping post
// ids already stored. Already-stored ids are preloaded once per outcome
// rather than checked per post; a conflicting concurrent insert that
// slips past the preload is treated as skipped via the unique
// constraint. A missing parent subreddit skips the whole outcome with a
// warning: this writer never creates parents.
func WritePosts(ctx context.Context, st store.Store, key string, payload any) (WriteStats, error) {
	var stats WriteStats
	posts, ok := payload.([]model.Post)
	if !ok {
		return stats, eris.Errorf("pipeline: unexpected payload %T for %s", payload, key)
	}

	parent, err := st.SubredditByName(ctx, key)
	if err != nil {
		return stats, err
	}
	if parent == nil {
		zap.L().Warn("subreddit not in store, skipping posts", zap.String("subreddit", key))
		return stats, nil
	}

	existing, err := st.PostIDsBySubreddit(ctx, parent.ID)
	if err != nil {
		return stats, err
	}

	for i := range posts {
		post := posts[i]
		if _, seen := existing[post.PostID]; seen {
			stats.Skipped++
			continue
		}
		post.SubredditID = parent.ID
		if err := st.InsertPost(ctx, &post); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				stats.Skipped++
				continue
			}
			// One bad row does not abort the rest of the outcome.
			zap.L().Warn("insert post failed",
				zap.String("subreddit", key),
				zap.String("post_id", post.PostID),
				zap.Error(err))
			continue
		}
		existing[post.PostID] = struct{}{}
		stats.Inserted++
	}
	return stats, nil
}

// WriteSnapshot inserts one activity snapshot row for the subreddit.
func WriteSnapshot(ctx context.Context, st store.Store, key string, payload any) (WriteStats, error) {
	var stats WriteStats
	snap, ok := payload.(*model.ActivitySnapshot)
	if !ok {
		return stats, eris.Errorf("pipeline: unexpected payload %T for %s", payload, key)
	}

	parent, err := st.SubredditByName(ctx, key)
	if err != nil {
		return stats, err
	}
	if parent == nil {
		zap.L().Warn("subreddit not in store, skipping snapshot", zap.String("subreddit", key))
		return stats, nil
	}

	snap.SubredditID = parent.ID
	if err := st.InsertSnapshot(ctx, snap); err != nil {
		return stats, err
	}
	stats.Inserted = 1
	return stats, nil
}

// WriteMeta upserts the subreddit's meta row by parent key: one row per
// subreddit, replaced in place on refresh.
func WriteMeta(ctx context.Context, st store.Store, key string, payload any) (WriteStats, error) {
	var stats WriteStats
	meta, ok := payload.(*model.Meta)
	if !ok {
		return stats, eris.Errorf("pipeline: unexpected payload %T for %s", payload, key)
	}

	parent, err := st.SubredditByName(ctx, key)
	if err != nil {
		return stats, err
	}
	if parent == nil {
		zap.L().Warn("subreddit not in store, skipping meta", zap.String("subreddit", key))
		return stats, nil
	}

	meta.SubredditID = parent.ID
	if err := st.UpsertMeta(ctx, meta); err != nil {
		return stats, err
	}
	stats.Inserted = 1
	return stats, nil
}
