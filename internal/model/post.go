package model

import "time"

// Post is one hot post captured for a subreddit. PostID is the reddit
// fullname-less id ("1abcde") and is unique within its subreddit; the
// duplicate-safe writer relies on that to skip already-stored posts.
type Post struct {
	ID          int64     `json:"id"`
	SubredditID int64     `json:"subreddit_id"`
	PostID      string    `json:"post_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	UpvoteRatio float64   `json:"upvote_ratio"`
	Flair       string    `json:"flair"`
	IsVideo     bool      `json:"is_video"`
	CreatedUTC  time.Time `json:"created_utc"`
	CollectedAt time.Time `json:"collected_at"`
}
