package model

import "time"

// ActivitySnapshot captures subreddit activity computed over the newest
// posts inside a short time window. One row is appended per run.
type ActivitySnapshot struct {
	ID                 int64     `json:"id"`
	SubredditID        int64     `json:"subreddit_id"`
	Timestamp          time.Time `json:"timestamp"`
	Subscribers        int64     `json:"subscribers"`
	PostsInWindow      int       `json:"num_posts_in_window"`
	CommentsInWindow   int       `json:"num_comments_in_window"`
	AvgUpvotesInWindow float64   `json:"average_upvotes_in_window"`
	TopPostScore       int       `json:"top_post_score_in_window"`
}
