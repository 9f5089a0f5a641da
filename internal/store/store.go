// Package store persists subreddits and their collected data.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

// ErrDuplicate is returned by inserts that hit a unique constraint.
// The duplicate-safe writer treats it as "skipped", never as a crash:
// two workers racing on the same parent converge via this constraint.
var ErrDuplicate = eris.New("store: duplicate record")

// Store defines the persistence interface for the collection pipelines.
type Store interface {
	// Subreddits
	InsertSubreddit(ctx context.Context, sub *model.Subreddit) (int64, error)
	SubredditByName(ctx context.Context, name string) (*model.Subreddit, error)
	ListSubredditNames(ctx context.Context) ([]string, error)
	ListMarketableNames(ctx context.Context) ([]string, error)
	SubredditsMissingMeta(ctx context.Context, limit int) ([]model.Subreddit, error)

	// Collected data
	PostIDsBySubreddit(ctx context.Context, subredditID int64) (map[string]struct{}, error)
	InsertPost(ctx context.Context, post *model.Post) error
	InsertSnapshot(ctx context.Context, snap *model.ActivitySnapshot) error
	UpsertMeta(ctx context.Context, meta *model.Meta) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
