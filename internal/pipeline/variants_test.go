package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolikaran1992/reddit-watcher/internal/config"
	"github.com/kolikaran1992/reddit-watcher/internal/model"
	"github.com/kolikaran1992/reddit-watcher/pkg/reddit"
)

type stubSession struct {
	hot   []model.Post
	about *reddit.About
	rules []model.Rule
	err   error
}

func (s *stubSession) HotPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error) {
	return s.hot, s.err
}

func (s *stubSession) NewPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error) {
	return s.hot, s.err
}

func (s *stubSession) About(ctx context.Context, subreddit string) (*reddit.About, error) {
	return s.about, s.err
}

func (s *stubSession) Rules(ctx context.Context, subreddit string) ([]model.Rule, error) {
	return s.rules, s.err
}

func (s *stubSession) Flairs(ctx context.Context, subreddit string) ([]model.Flair, error) {
	return nil, s.err
}

func (s *stubSession) Close() error { return nil }

func testPipelineConfig(t *testing.T) config.PipelineConfig {
	t.Helper()
	return config.PipelineConfig{
		BatchFile:        filepath.Join(t.TempDir(), "batches.json"),
		BatchSize:        2,
		FetchLimit:       5,
		WindowMinutes:    5,
		LimiterMaxCalls:  100,
		LimiterPeriodSec: 1,
		Workers:          2,
		FetchTimeoutSecs: 5,
	}
}

func TestHotPostsVariant(t *testing.T) {
	session := &stubSession{hot: []model.Post{{PostID: "a"}, {PostID: "b"}}}
	v, err := HotPosts(testPipelineConfig(t), session)
	require.NoError(t, err)

	assert.Equal(t, "hot-posts", v.Name)
	require.NotNil(t, v.Batches)
	assert.Equal(t, 2, v.Engine.Workers)
	assert.Equal(t, 5*time.Second, v.Engine.FetchTimeout)

	st := newFakeStore("golang", "rust")
	st.marketable = []string{"golang"}
	pop, err := v.Population(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, pop)

	payload, err := v.Fetch(context.Background(), "golang")
	require.NoError(t, err)
	posts, ok := payload.([]model.Post)
	require.True(t, ok)
	assert.Len(t, posts, 2)
}

func TestSnapshotVariantPopulationIsAllSubreddits(t *testing.T) {
	v, err := Snapshot(testPipelineConfig(t), &stubSession{})
	require.NoError(t, err)

	st := newFakeStore("golang", "rust")
	st.marketable = []string{"golang"}
	pop, err := v.Population(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "rust"}, pop)
}

func TestMetaUpdateVariantHasNoBatchFile(t *testing.T) {
	v, err := MetaUpdate(testPipelineConfig(t), &stubSession{})
	require.NoError(t, err)
	assert.Nil(t, v.Batches)

	st := newFakeStore("a", "b", "c")
	pop, err := v.Population(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pop)
}

func TestMetaUpdateForbiddenYieldsNullRow(t *testing.T) {
	session := &stubSession{err: &reddit.Error{Reason: reddit.ReasonForbidden, Subreddit: "private", Status: 403}}
	v, err := MetaUpdate(testPipelineConfig(t), session)
	require.NoError(t, err)

	payload, err := v.Fetch(context.Background(), "private")
	require.NoError(t, err)
	meta, ok := payload.(*model.Meta)
	require.True(t, ok)
	assert.Nil(t, meta.Description)
	assert.Nil(t, meta.Rules)
	assert.Nil(t, meta.AllowVideos)
}

func TestMetaUpdateOtherErrorsPropagate(t *testing.T) {
	session := &stubSession{err: &reddit.Error{Reason: reddit.ReasonRateLimited, Status: 429}}
	v, err := MetaUpdate(testPipelineConfig(t), session)
	require.NoError(t, err)

	_, err = v.Fetch(context.Background(), "golang")
	assert.Error(t, err)
}

func TestEngineConfigRejectsBadLimiter(t *testing.T) {
	cfg := testPipelineConfig(t)
	cfg.LimiterMaxCalls = 0
	_, err := HotPosts(cfg, &stubSession{})
	assert.Error(t, err)
}
