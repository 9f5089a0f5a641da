// Package model defines the domain records shared by the stores and pipelines.
package model

import "time"

// Subreddit is the parent record for all collected data. Name is the
// natural key ("r/golang") and is unique across the population.
type Subreddit struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	CreatedUTC time.Time `json:"created_utc"`
	IsNSFW     bool      `json:"is_nsfw"`
	Type       string    `json:"subreddit_type"`
	Lang       string    `json:"lang"`
}
