package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subreddits (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL UNIQUE,
	title          TEXT,
	created_utc    DATETIME,
	is_nsfw        BOOLEAN,
	subreddit_type TEXT,
	lang           TEXT
);

CREATE TABLE IF NOT EXISTS subreddit_posts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	subreddit_id INTEGER NOT NULL REFERENCES subreddits(id),
	post_id      TEXT NOT NULL,
	title        TEXT,
	author       TEXT,
	url          TEXT,
	score        INTEGER,
	num_comments INTEGER,
	upvote_ratio REAL,
	flair        TEXT,
	is_video     BOOLEAN,
	created_utc  DATETIME,
	collected_at DATETIME,
	UNIQUE (subreddit_id, post_id)
);

CREATE TABLE IF NOT EXISTS subreddit_meta (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	subreddit_id INTEGER NOT NULL UNIQUE REFERENCES subreddits(id),
	description  TEXT,
	rules_json   TEXT,
	flairs_json  TEXT,
	allow_videos BOOLEAN,
	allow_images BOOLEAN,
	allow_links  BOOLEAN,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subreddit_activity_snapshots (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	subreddit_id              INTEGER NOT NULL REFERENCES subreddits(id),
	timestamp                 DATETIME NOT NULL,
	subscribers               INTEGER,
	num_posts_in_window       INTEGER,
	num_comments_in_window    INTEGER,
	average_upvotes_in_window REAL,
	top_post_score_in_window  INTEGER
);

CREATE TABLE IF NOT EXISTS video_subreddit_assessments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	subreddit_id  INTEGER NOT NULL REFERENCES subreddits(id),
	is_marketable TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subreddit_posts_subreddit_id ON subreddit_posts(subreddit_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_subreddit_id ON subreddit_activity_snapshots(subreddit_id);
CREATE INDEX IF NOT EXISTS idx_assessments_subreddit_id ON video_subreddit_assessments(subreddit_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteIsUnique reports whether err is a unique constraint violation.
func sqliteIsUnique(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func (s *SQLiteStore) InsertSubreddit(ctx context.Context, sub *model.Subreddit) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subreddits (name, title, created_utc, is_nsfw, subreddit_type, lang) VALUES (?, ?, ?, ?, ?, ?)`,
		sub.Name, sub.Title, sub.CreatedUTC, sub.IsNSFW, sub.Type, sub.Lang,
	)
	if err != nil {
		if sqliteIsUnique(err) {
			return 0, eris.Wrapf(ErrDuplicate, "sqlite: subreddit %s", sub.Name)
		}
		return 0, eris.Wrapf(err, "sqlite: insert subreddit %s", sub.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) SubredditByName(ctx context.Context, name string) (*model.Subreddit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, title, created_utc, is_nsfw, subreddit_type, lang FROM subreddits WHERE name = ?`,
		name,
	)

	var sub model.Subreddit
	var createdUTC sql.NullTime
	var title, subType, lang sql.NullString
	var isNSFW sql.NullBool
	err := row.Scan(&sub.ID, &sub.Name, &title, &createdUTC, &isNSFW, &subType, &lang)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get subreddit %s", name)
	}
	sub.Title = title.String
	sub.CreatedUTC = createdUTC.Time
	sub.IsNSFW = isNSFW.Bool
	sub.Type = subType.String
	sub.Lang = lang.String
	return &sub, nil
}

func (s *SQLiteStore) ListSubredditNames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM subreddits ORDER BY id`)
}

func (s *SQLiteStore) ListMarketableNames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `
		SELECT s.name
		FROM subreddits s
		JOIN video_subreddit_assessments a ON a.subreddit_id = s.id
		WHERE a.is_marketable = 'yes'
		GROUP BY s.id, s.name
		ORDER BY s.id`)
}

func (s *SQLiteStore) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: iterate names")
}

func (s *SQLiteStore) SubredditsMissingMeta(ctx context.Context, limit int) ([]model.Subreddit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM subreddits
		WHERE id NOT IN (SELECT subreddit_id FROM subreddit_meta)
		ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: subreddits missing meta")
	}
	defer rows.Close()

	var subs []model.Subreddit
	for rows.Next() {
		var sub model.Subreddit
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subreddit")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: iterate subreddits")
}

func (s *SQLiteStore) PostIDsBySubreddit(ctx context.Context, subredditID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM subreddit_posts WHERE subreddit_id = ?`, subredditID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: post ids for subreddit %d", subredditID)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan post id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate post ids")
}

func (s *SQLiteStore) InsertPost(ctx context.Context, post *model.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subreddit_posts
			(subreddit_id, post_id, title, author, url, score, num_comments, upvote_ratio, flair, is_video, created_utc, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.SubredditID, post.PostID, post.Title, post.Author, post.URL,
		post.Score, post.NumComments, post.UpvoteRatio, post.Flair, post.IsVideo,
		post.CreatedUTC, post.CollectedAt,
	)
	if err != nil {
		if sqliteIsUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: post %s in subreddit %d", post.PostID, post.SubredditID)
		}
		return eris.Wrapf(err, "sqlite: insert post %s", post.PostID)
	}
	return nil
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap *model.ActivitySnapshot) error {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subreddit_activity_snapshots
			(subreddit_id, timestamp, subscribers, num_posts_in_window, num_comments_in_window, average_upvotes_in_window, top_post_score_in_window)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SubredditID, ts, snap.Subscribers, snap.PostsInWindow,
		snap.CommentsInWindow, snap.AvgUpvotesInWindow, snap.TopPostScore,
	)
	return eris.Wrapf(err, "sqlite: insert snapshot for subreddit %d", snap.SubredditID)
}

func (s *SQLiteStore) UpsertMeta(ctx context.Context, meta *model.Meta) error {
	rulesJSON, flairsJSON, err := marshalMetaJSON(meta)
	if err != nil {
		return err
	}

	updatedAt := meta.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subreddit_meta
			(subreddit_id, description, rules_json, flairs_json, allow_videos, allow_images, allow_links, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subreddit_id) DO UPDATE SET
			description = excluded.description,
			rules_json = excluded.rules_json,
			flairs_json = excluded.flairs_json,
			allow_videos = excluded.allow_videos,
			allow_images = excluded.allow_images,
			allow_links = excluded.allow_links,
			updated_at = excluded.updated_at`,
		meta.SubredditID, meta.Description, rulesJSON, flairsJSON,
		meta.AllowVideos, meta.AllowImages, meta.AllowLinks, updatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert meta for subreddit %d", meta.SubredditID)
}

// marshalMetaJSON encodes rules and flairs for storage; nil slices map
// to SQL NULL so a forbidden subreddit's row stays all-null.
func marshalMetaJSON(meta *model.Meta) (rulesJSON, flairsJSON *string, err error) {
	if meta.Rules != nil {
		data, err := json.Marshal(meta.Rules)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal rules")
		}
		s := string(data)
		rulesJSON = &s
	}
	if meta.Flairs != nil {
		data, err := json.Marshal(meta.Flairs)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal flairs")
		}
		s := string(data)
		flairsJSON = &s
	}
	return rulesJSON, flairsJSON, nil
}
