package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "watcher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSubreddit(t *testing.T, s *SQLiteStore, name string) int64 {
	t.Helper()
	id, err := s.InsertSubreddit(context.Background(), &model.Subreddit{
		Name:       name,
		Title:      "title of " + name,
		CreatedUTC: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		Type:       "public",
		Lang:       "en",
	})
	require.NoError(t, err)
	return id
}

func TestSQLiteInsertSubredditAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id := seedSubreddit(t, s, "golang")
	assert.Greater(t, id, int64(0))

	sub, err := s.SubredditByName(ctx, "golang")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, "golang", sub.Name)
	assert.Equal(t, "title of golang", sub.Title)
	assert.Equal(t, "public", sub.Type)
}

func TestSQLiteSubredditByNameMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	sub, err := s.SubredditByName(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSQLiteInsertSubredditDuplicate(t *testing.T) {
	s := newTestSQLiteStore(t)

	seedSubreddit(t, s, "golang")
	_, err := s.InsertSubreddit(context.Background(), &model.Subreddit{Name: "golang"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSQLiteInsertPostDuplicate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	id := seedSubreddit(t, s, "golang")

	post := &model.Post{
		SubredditID: id,
		PostID:      "abc123",
		Title:       "hello",
		Score:       10,
		CreatedUTC:  time.Now().UTC(),
		CollectedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertPost(ctx, post))
	assert.ErrorIs(t, s.InsertPost(ctx, post), ErrDuplicate)

	// Same post id under a different subreddit is fine.
	other := seedSubreddit(t, s, "rust")
	post.SubredditID = other
	assert.NoError(t, s.InsertPost(ctx, post))
}

func TestSQLitePostIDsBySubreddit(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	id := seedSubreddit(t, s, "golang")

	for _, pid := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertPost(ctx, &model.Post{SubredditID: id, PostID: pid}))
	}

	ids, err := s.PostIDsBySubreddit(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	_, ok := ids["b"]
	assert.True(t, ok)
}

func TestSQLiteListSubredditNames(t *testing.T) {
	s := newTestSQLiteStore(t)

	seedSubreddit(t, s, "golang")
	seedSubreddit(t, s, "rust")
	seedSubreddit(t, s, "zig")

	names, err := s.ListSubredditNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "rust", "zig"}, names)
}

func TestSQLiteListMarketableNames(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	golang := seedSubreddit(t, s, "golang")
	rust := seedSubreddit(t, s, "rust")
	seedSubreddit(t, s, "zig")

	// Duplicate assessments for the same subreddit collapse to one name.
	for _, row := range []struct {
		sub        int64
		marketable string
	}{
		{golang, "yes"},
		{golang, "yes"},
		{rust, "no"},
	} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO video_subreddit_assessments (subreddit_id, is_marketable) VALUES (?, ?)`,
			row.sub, row.marketable)
		require.NoError(t, err)
	}

	names, err := s.ListMarketableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, names)
}

func TestSQLiteSubredditsMissingMeta(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	golang := seedSubreddit(t, s, "golang")
	rust := seedSubreddit(t, s, "rust")
	zig := seedSubreddit(t, s, "zig")

	require.NoError(t, s.UpsertMeta(ctx, &model.Meta{SubredditID: rust}))

	subs, err := s.SubredditsMissingMeta(ctx, 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, golang, subs[0].ID)
	assert.Equal(t, zig, subs[1].ID)

	subs, err = s.SubredditsMissingMeta(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "golang", subs[0].Name)
}

func TestSQLiteUpsertMeta(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	id := seedSubreddit(t, s, "golang")

	desc := "a place for gophers"
	allow := true
	meta := &model.Meta{
		SubredditID: id,
		Description: &desc,
		Rules:       []model.Rule{{ShortName: "be nice", Kind: "all"}},
		Flairs:      []model.Flair{{Text: "help"}},
		AllowVideos: &allow,
	}
	require.NoError(t, s.UpsertMeta(ctx, meta))

	// Second upsert replaces the row rather than violating the unique
	// constraint on subreddit_id.
	newDesc := "updated"
	meta.Description = &newDesc
	require.NoError(t, s.UpsertMeta(ctx, meta))

	var count int
	var gotDesc string
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(description) FROM subreddit_meta WHERE subreddit_id = ?`, id)
	require.NoError(t, row.Scan(&count, &gotDesc))
	assert.Equal(t, 1, count)
	assert.Equal(t, "updated", gotDesc)
}

func TestSQLiteUpsertMetaAllNull(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	id := seedSubreddit(t, s, "private_sub")

	require.NoError(t, s.UpsertMeta(ctx, &model.Meta{SubredditID: id}))

	var desc, rules, flairs, allowVideos any
	row := s.db.QueryRowContext(ctx,
		`SELECT description, rules_json, flairs_json, allow_videos FROM subreddit_meta WHERE subreddit_id = ?`, id)
	require.NoError(t, row.Scan(&desc, &rules, &flairs, &allowVideos))
	assert.Nil(t, desc)
	assert.Nil(t, rules)
	assert.Nil(t, flairs)
	assert.Nil(t, allowVideos)
}

func TestSQLiteInsertSnapshot(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	id := seedSubreddit(t, s, "golang")

	err := s.InsertSnapshot(ctx, &model.ActivitySnapshot{
		SubredditID:        id,
		Subscribers:        120000,
		PostsInWindow:      7,
		CommentsInWindow:   42,
		AvgUpvotesInWindow: 13.5,
		TopPostScore:       900,
	})
	require.NoError(t, err)

	var subscribers int64
	var avg float64
	row := s.db.QueryRowContext(ctx,
		`SELECT subscribers, average_upvotes_in_window FROM subreddit_activity_snapshots WHERE subreddit_id = ?`, id)
	require.NoError(t, row.Scan(&subscribers, &avg))
	assert.Equal(t, int64(120000), subscribers)
	assert.InDelta(t, 13.5, avg, 0.001)
}
