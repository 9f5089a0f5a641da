package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

func TestWritePostsInsertsAndSkips(t *testing.T) {
	st := newFakeStore("golang")
	st.posts[1] = []model.Post{{SubredditID: 1, PostID: "a"}}

	stats, err := WritePosts(context.Background(), st, "golang", postsPayload("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 2, Skipped: 1}, stats)
	assert.Len(t, st.posts[1], 3)

	for _, p := range st.posts[1] {
		assert.Equal(t, int64(1), p.SubredditID)
	}
}

func TestWritePostsIdempotent(t *testing.T) {
	st := newFakeStore("golang")
	payload := postsPayload("a", "b")

	first, err := WritePosts(context.Background(), st, "golang", payload)
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 2}, first)

	second, err := WritePosts(context.Background(), st, "golang", payload)
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 0, Skipped: 2}, second)
	assert.Len(t, st.posts[1], 2)
}

func TestWritePostsUnknownParentSkipsOutcome(t *testing.T) {
	st := newFakeStore()

	stats, err := WritePosts(context.Background(), st, "ghost", postsPayload("a"))
	require.NoError(t, err)
	assert.Equal(t, WriteStats{}, stats)
}

func TestWritePostsBadPayload(t *testing.T) {
	st := newFakeStore("golang")

	_, err := WritePosts(context.Background(), st, "golang", "not posts")
	assert.Error(t, err)
}

func TestWritePostsDuplicatePayload(t *testing.T) {
	// The same post id twice in one payload: the preload set misses it
	// the second time but the insert path treats the constraint conflict
	// as a skip.
	st := newFakeStore("golang")

	stats, err := WritePosts(context.Background(), st, "golang", postsPayload("a", "a"))
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 1, Skipped: 1}, stats)
}

func TestWriteSnapshotResolvesParent(t *testing.T) {
	st := newFakeStore("golang")

	stats, err := WriteSnapshot(context.Background(), st, "golang", &model.ActivitySnapshot{
		Subscribers:   1000,
		PostsInWindow: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 1}, stats)
	require.Len(t, st.snapshots, 1)
	assert.Equal(t, int64(1), st.snapshots[0].SubredditID)
}

func TestWriteSnapshotUnknownParent(t *testing.T) {
	st := newFakeStore()

	stats, err := WriteSnapshot(context.Background(), st, "ghost", &model.ActivitySnapshot{})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{}, stats)
	assert.Empty(t, st.snapshots)
}

func TestWriteMetaUpserts(t *testing.T) {
	st := newFakeStore("golang")
	desc := "gophers"

	stats, err := WriteMeta(context.Background(), st, "golang", &model.Meta{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 1}, stats)
	require.Contains(t, st.metas, int64(1))
	assert.Equal(t, &desc, st.metas[1].Description)

	// Refresh replaces in place.
	stats, err = WriteMeta(context.Background(), st, "golang", &model.Meta{})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Inserted: 1}, stats)
	assert.Nil(t, st.metas[1].Description)
}
