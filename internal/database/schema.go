package database

// schema holds the archive DDL, applied in order by Migrate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tweets (
		tweet_id        BIGINT PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		screen_name     TEXT NOT NULL DEFAULT '',
		text            TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ,
		received_at     TIMESTAMPTZ NOT NULL,
		session_id      UUID NOT NULL,
		payload         JSONB NOT NULL,
		deleted_at      TIMESTAMPTZ,
		geo_scrubbed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS tweets_user_id_idx ON tweets (user_id, tweet_id)`,
	`CREATE TABLE IF NOT EXISTS tweet_deletions (
		tweet_id    BIGINT PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS geo_scrubs (
		user_id          BIGINT NOT NULL,
		up_to_status_id  BIGINT NOT NULL,
		received_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, up_to_status_id)
	)`,
}
