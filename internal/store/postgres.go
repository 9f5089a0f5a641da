package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kolikaran1992/reddit-watcher/internal/model"
)

// Pool abstracts *pgxpool.Pool so the store can be unit-tested with
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS subreddits (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	title          TEXT,
	created_utc    TIMESTAMPTZ,
	is_nsfw        BOOLEAN,
	subreddit_type TEXT,
	lang           TEXT
);

CREATE TABLE IF NOT EXISTS subreddit_posts (
	id           BIGSERIAL PRIMARY KEY,
	subreddit_id BIGINT NOT NULL REFERENCES subreddits(id),
	post_id      TEXT NOT NULL,
	title        TEXT,
	author       TEXT,
	url          TEXT,
	score        INTEGER,
	num_comments INTEGER,
	upvote_ratio DOUBLE PRECISION,
	flair        TEXT,
	is_video     BOOLEAN,
	created_utc  TIMESTAMPTZ,
	collected_at TIMESTAMPTZ,
	UNIQUE (subreddit_id, post_id)
);

CREATE TABLE IF NOT EXISTS subreddit_meta (
	id           BIGSERIAL PRIMARY KEY,
	subreddit_id BIGINT NOT NULL UNIQUE REFERENCES subreddits(id),
	description  TEXT,
	rules_json   JSONB,
	flairs_json  JSONB,
	allow_videos BOOLEAN,
	allow_images BOOLEAN,
	allow_links  BOOLEAN,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subreddit_activity_snapshots (
	id                        BIGSERIAL PRIMARY KEY,
	subreddit_id              BIGINT NOT NULL REFERENCES subreddits(id),
	timestamp                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	subscribers               BIGINT,
	num_posts_in_window       INTEGER,
	num_comments_in_window    INTEGER,
	average_upvotes_in_window DOUBLE PRECISION,
	top_post_score_in_window  INTEGER
);

CREATE TABLE IF NOT EXISTS video_subreddit_assessments (
	id            BIGSERIAL PRIMARY KEY,
	subreddit_id  BIGINT NOT NULL REFERENCES subreddits(id),
	is_marketable TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subreddit_posts_subreddit_id ON subreddit_posts(subreddit_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_subreddit_id ON subreddit_activity_snapshots(subreddit_id);
CREATE INDEX IF NOT EXISTS idx_assessments_subreddit_id ON video_subreddit_assessments(subreddit_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgIsUnique reports whether err is a unique constraint violation.
func pgIsUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) InsertSubreddit(ctx context.Context, sub *model.Subreddit) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO subreddits (name, title, created_utc, is_nsfw, subreddit_type, lang) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sub.Name, sub.Title, sub.CreatedUTC, sub.IsNSFW, sub.Type, sub.Lang,
	).Scan(&id)
	if err != nil {
		if pgIsUnique(err) {
			return 0, eris.Wrapf(ErrDuplicate, "postgres: subreddit %s", sub.Name)
		}
		return 0, eris.Wrapf(err, "postgres: insert subreddit %s", sub.Name)
	}
	return id, nil
}

func (s *PostgresStore) SubredditByName(ctx context.Context, name string) (*model.Subreddit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(title, ''), COALESCE(created_utc, 'epoch'::timestamptz), COALESCE(is_nsfw, false), COALESCE(subreddit_type, ''), COALESCE(lang, '') FROM subreddits WHERE name = $1`,
		name,
	)

	var sub model.Subreddit
	err := row.Scan(&sub.ID, &sub.Name, &sub.Title, &sub.CreatedUTC, &sub.IsNSFW, &sub.Type, &sub.Lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get subreddit %s", name)
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubredditNames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM subreddits ORDER BY id`)
}

func (s *PostgresStore) ListMarketableNames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `
		SELECT s.name
		FROM subreddits s
		JOIN video_subreddit_assessments a ON a.subreddit_id = s.id
		WHERE a.is_marketable = 'yes'
		GROUP BY s.id, s.name
		ORDER BY s.id`)
}

func (s *PostgresStore) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "postgres: iterate names")
}

func (s *PostgresStore) SubredditsMissingMeta(ctx context.Context, limit int) ([]model.Subreddit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name FROM subreddits
		WHERE id NOT IN (SELECT subreddit_id FROM subreddit_meta)
		ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: subreddits missing meta")
	}
	defer rows.Close()

	var subs []model.Subreddit
	for rows.Next() {
		var sub model.Subreddit
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subreddit")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: iterate subreddits")
}

func (s *PostgresStore) PostIDsBySubreddit(ctx context.Context, subredditID int64) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM subreddit_posts WHERE subreddit_id = $1`, subredditID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: post ids for subreddit %d", subredditID)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan post id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate post ids")
}

func (s *PostgresStore) InsertPost(ctx context.Context, post *model.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subreddit_posts
			(subreddit_id, post_id, title, author, url, score, num_comments, upvote_ratio, flair, is_video, created_utc, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		post.SubredditID, post.PostID, post.Title, post.Author, post.URL,
		post.Score, post.NumComments, post.UpvoteRatio, post.Flair, post.IsVideo,
		post.CreatedUTC, post.CollectedAt,
	)
	if err != nil {
		if pgIsUnique(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: post %s in subreddit %d", post.PostID, post.SubredditID)
		}
		return eris.Wrapf(err, "postgres: insert post %s", post.PostID)
	}
	return nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.ActivitySnapshot) error {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subreddit_activity_snapshots
			(subreddit_id, timestamp, subscribers, num_posts_in_window, num_comments_in_window, average_upvotes_in_window, top_post_score_in_window)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.SubredditID, ts, snap.Subscribers, snap.PostsInWindow,
		snap.CommentsInWindow, snap.AvgUpvotesInWindow, snap.TopPostScore,
	)
	return eris.Wrapf(err, "postgres: insert snapshot for subreddit %d", snap.SubredditID)
}

func (s *PostgresStore) UpsertMeta(ctx context.Context, meta *model.Meta) error {
	rulesJSON, flairsJSON, err := marshalMetaJSON(meta)
	if err != nil {
		return err
	}

	updatedAt := meta.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO subreddit_meta
			(subreddit_id, description, rules_json, flairs_json, allow_videos, allow_images, allow_links, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subreddit_id) DO UPDATE SET
			description = EXCLUDED.description,
			rules_json = EXCLUDED.rules_json,
			flairs_json = EXCLUDED.flairs_json,
			allow_videos = EXCLUDED.allow_videos,
			allow_images = EXCLUDED.allow_images,
			allow_links = EXCLUDED.allow_links,
			updated_at = EXCLUDED.updated_at`,
		meta.SubredditID, meta.Description, rulesJSON, flairsJSON,
		meta.AllowVideos, meta.AllowImages, meta.AllowLinks, updatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert meta for subreddit %d", meta.SubredditID)
}
