// Package reddit provides a rate-limited OAuth client for the reddit
// data API plus per-subreddit collectors.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

// Session is one authenticated API session, shared read-only by all
// workers of a batch and closed once the batch finishes.
type Session interface {
	// HotPosts returns up to limit posts from the subreddit's hot listing.
	HotPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error)
	// NewPosts returns up to limit posts from the subreddit's new listing.
	NewPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error)
	// About returns the subreddit's metadata page.
	About(ctx context.Context, subreddit string) (*About, error)
	// Rules returns the subreddit's posting rules.
	Rules(ctx context.Context, subreddit string) ([]model.Rule, error)
	// Flairs returns the subreddit's link flair templates.
	Flairs(ctx context.Context, subreddit string) ([]model.Flair, error)
	// Close releases the session.
	Close() error
}

// About is the parsed subreddit about endpoint.
type About struct {
	DisplayName       string
	Title             string
	CreatedUTC        time.Time
	IsNSFW            bool
	Type              string
	Lang              string
	Subscribers       int64
	PublicDescription string
	Description       string
	AllowVideos       bool
	AllowImages       bool
	AllowDiscovery    bool
}

// Config holds script-app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	BaseURL      string
	AuthURL      string
	Timeout      time.Duration
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithLimiter overrides the protective API limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *client) { c.limiter = l }
}

type client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSession authenticates against the reddit OAuth endpoint and
// returns a ready Session. The protective limiter is a last-resort
// guard under the engine's own token bucket, sized to reddit's 100
// requests/minute OAuth quota.
func NewSession(ctx context.Context, cfg Config, opts ...Option) (Session, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://www.reddit.com/api/v1/access_token"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(100.0/60.0), 10),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// SanitizeName strips the "r/" or "/r/" prefix from a subreddit name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return name
}

func (c *client) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "reddit: build auth request")
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "reddit: auth request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eris.Errorf("reddit: auth failed with status %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return eris.Wrap(err, "reddit: decode auth response")
	}
	if tok.AccessToken == "" {
		return eris.New("reddit: auth response had no access token")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

func (c *client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.tokenExpiry
	c.mu.Unlock()

	// Refresh one minute before expiry.
	if token != "" && time.Until(expiry) > time.Minute {
		return token, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return token, nil
}

func (c *client) get(ctx context.Context, subreddit, path string, query url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "reddit: limiter wait")
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrapf(err, "reddit: build request %s", path)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Reason: ReasonOf(err), Subreddit: subreddit, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return &Error{Reason: statusReason(resp.StatusCode), Subreddit: subreddit, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return eris.Wrapf(err, "reddit: decode %s", path)
	}
	return nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data apiPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type apiPost struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	URL           string  `json:"url"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	LinkFlairText string  `json:"link_flair_text"`
	IsVideo       bool    `json:"is_video"`
	CreatedUTC    float64 `json:"created_utc"`
}

func (p apiPost) toModel(now time.Time) model.Post {
	return model.Post{
		PostID:      p.ID,
		Title:       p.Title,
		Author:      p.Author,
		URL:         p.URL,
		Score:       p.Score,
		NumComments: p.NumComments,
		UpvoteRatio: p.UpvoteRatio,
		Flair:       p.LinkFlairText,
		IsVideo:     p.IsVideo,
		CreatedUTC:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
		CollectedAt: now,
	}
}

func (c *client) listing(ctx context.Context, subreddit, sort string, limit int) ([]model.Post, error) {
	name := SanitizeName(subreddit)
	query := url.Values{
		"limit":    {fmt.Sprintf("%d", limit)},
		"raw_json": {"1"},
	}

	var resp listingResponse
	if err := c.get(ctx, name, fmt.Sprintf("/r/%s/%s", name, sort), query, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	posts := make([]model.Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		posts = append(posts, child.Data.toModel(now))
	}
	return posts, nil
}

func (c *client) HotPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error) {
	return c.listing(ctx, subreddit, "hot", limit)
}

func (c *client) NewPosts(ctx context.Context, subreddit string, limit int) ([]model.Post, error) {
	return c.listing(ctx, subreddit, "new", limit)
}

func (c *client) About(ctx context.Context, subreddit string) (*About, error) {
	name := SanitizeName(subreddit)

	var resp struct {
		Data struct {
			DisplayName       string  `json:"display_name"`
			Title             string  `json:"title"`
			CreatedUTC        float64 `json:"created_utc"`
			Over18            bool    `json:"over18"`
			SubredditType     string  `json:"subreddit_type"`
			Lang              string  `json:"lang"`
			Subscribers       int64   `json:"subscribers"`
			PublicDescription string  `json:"public_description"`
			Description       string  `json:"description"`
			AllowVideos       bool    `json:"allow_videos"`
			AllowImages       bool    `json:"allow_images"`
			AllowDiscovery    bool    `json:"allow_discovery"`
		} `json:"data"`
	}
	if err := c.get(ctx, name, fmt.Sprintf("/r/%s/about", name), url.Values{"raw_json": {"1"}}, &resp); err != nil {
		return nil, err
	}

	d := resp.Data
	return &About{
		DisplayName:       d.DisplayName,
		Title:             d.Title,
		CreatedUTC:        time.Unix(int64(d.CreatedUTC), 0).UTC(),
		IsNSFW:            d.Over18,
		Type:              d.SubredditType,
		Lang:              d.Lang,
		Subscribers:       d.Subscribers,
		PublicDescription: d.PublicDescription,
		Description:       d.Description,
		AllowVideos:       d.AllowVideos,
		AllowImages:       d.AllowImages,
		AllowDiscovery:    d.AllowDiscovery,
	}, nil
}

func (c *client) Rules(ctx context.Context, subreddit string) ([]model.Rule, error) {
	name := SanitizeName(subreddit)

	var resp struct {
		Rules []struct {
			ShortName   string `json:"short_name"`
			Description string `json:"description"`
			Kind        string `json:"kind"`
		} `json:"rules"`
	}
	if err := c.get(ctx, name, fmt.Sprintf("/r/%s/about/rules", name), url.Values{"raw_json": {"1"}}, &resp); err != nil {
		return nil, err
	}

	rules := make([]model.Rule, 0, len(resp.Rules))
	for _, r := range resp.Rules {
		rules = append(rules, model.Rule{ShortName: r.ShortName, Description: r.Description, Kind: r.Kind})
	}
	return rules, nil
}

func (c *client) Flairs(ctx context.Context, subreddit string) ([]model.Flair, error) {
	name := SanitizeName(subreddit)

	var resp []struct {
		Text     string `json:"text"`
		CSSClass string `json:"css_class"`
	}
	if err := c.get(ctx, name, fmt.Sprintf("/r/%s/api/link_flair_v2", name), url.Values{"raw_json": {"1"}}, &resp); err != nil {
		return nil, err
	}

	flairs := make([]model.Flair, 0, len(resp))
	for _, f := range resp {
		flairs = append(flairs, model.Flair{Text: f.Text, CSSClass: f.CSSClass})
	}
	return flairs, nil
}

func (c *client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
