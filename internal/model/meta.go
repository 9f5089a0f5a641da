package model

import "time"

// Rule is one subreddit posting rule.
type Rule struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// Flair is one link flair template.
type Flair struct {
	Text     string `json:"flair_text"`
	CSSClass string `json:"flair_css_class"`
}

// Meta holds a subreddit's descriptive metadata. Exactly one row exists
// per subreddit; forbidden (private or banned) subreddits get a row with
// every nullable field unset so they are not re-selected on the next run.
type Meta struct {
	SubredditID int64     `json:"subreddit_id"`
	Description *string   `json:"description"`
	Rules       []Rule    `json:"rules"`
	Flairs      []Flair   `json:"flairs"`
	AllowVideos *bool     `json:"allow_videos"`
	AllowImages *bool     `json:"allow_images"`
	AllowLinks  *bool     `json:"allow_links"`
	UpdatedAt   time.Time `json:"updated_at"`
}
