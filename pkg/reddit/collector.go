package reddit

import (
	"context"
	"time"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

// memoResult is the tagged variant stored in the collector's memo map:
// a fetch either produced a value or an error, never both.
type memoResult struct {
	value any
	err   error
}

// Collector derives domain records for a single subreddit. Repeated
// lookups (about, rules, flairs) within one run are memoized per
// collector instance; instances are never shared across subreddits.
type Collector struct {
	session Session
	name    string
	memo    map[string]memoResult
}

// NewCollector creates a Collector for one subreddit.
func NewCollector(session Session, name string) *Collector {
	return &Collector{
		session: session,
		name:    SanitizeName(name),
		memo:    make(map[string]memoResult),
	}
}

func (c *Collector) cached(key string, fetch func() (any, error)) (any, error) {
	if res, ok := c.memo[key]; ok {
		return res.value, res.err
	}
	value, err := fetch()
	c.memo[key] = memoResult{value: value, err: err}
	return value, err
}

func (c *Collector) about(ctx context.Context) (*About, error) {
	v, err := c.cached("about", func() (any, error) {
		return c.session.About(ctx, c.name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*About), nil
}

// CollectHotPosts fetches up to limit posts from the hot listing.
func (c *Collector) CollectHotPosts(ctx context.Context, limit int) ([]model.Post, error) {
	return c.session.HotPosts(ctx, c.name, limit)
}

// CollectActivity computes the activity snapshot over posts newer than
// the window cutoff within the newest limit posts.
func (c *Collector) CollectActivity(ctx context.Context, limit int, window time.Duration) (*model.ActivitySnapshot, error) {
	posts, err := c.session.NewPosts(ctx, c.name, limit)
	if err != nil {
		return nil, err
	}
	about, err := c.about(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-window)
	var recent []model.Post
	for _, p := range posts {
		if p.CreatedUTC.After(cutoff) {
			recent = append(recent, p)
		}
	}

	snap := &model.ActivitySnapshot{
		Timestamp:     time.Now().UTC(),
		Subscribers:   about.Subscribers,
		PostsInWindow: len(recent),
	}
	var totalScore int
	for _, p := range recent {
		snap.CommentsInWindow += p.NumComments
		totalScore += p.Score
		if p.Score > snap.TopPostScore {
			snap.TopPostScore = p.Score
		}
	}
	if len(recent) > 0 {
		snap.AvgUpvotesInWindow = float64(totalScore) / float64(len(recent))
	}
	return snap, nil
}

// CollectMeta fetches the subreddit's descriptive metadata. The about
// page, rules and flairs are each fetched at most once per collector.
func (c *Collector) CollectMeta(ctx context.Context) (*model.Meta, error) {
	about, err := c.about(ctx)
	if err != nil {
		return nil, err
	}

	rulesVal, err := c.cached("rules", func() (any, error) {
		return c.session.Rules(ctx, c.name)
	})
	if err != nil {
		return nil, err
	}
	flairsVal, err := c.cached("flairs", func() (any, error) {
		return c.session.Flairs(ctx, c.name)
	})
	if err != nil {
		return nil, err
	}

	description := about.PublicDescription
	if description == "" {
		description = about.Description
	}

	allowVideos := about.AllowVideos
	allowImages := about.AllowImages
	allowLinks := about.AllowDiscovery
	return &model.Meta{
		Description: &description,
		Rules:       rulesVal.([]model.Rule),
		Flairs:      flairsVal.([]model.Flair),
		AllowVideos: &allowVideos,
		AllowImages: &allowImages,
		AllowLinks:  &allowLinks,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// ClearMemo drops cached values to force fresh API pulls.
func (c *Collector) ClearMemo() {
	c.memo = make(map[string]memoResult)
}
