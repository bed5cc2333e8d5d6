package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database connection.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

// Migrate creates the schema if it is missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	log.Println("database migrations applied")
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            user_id BIGINT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS challenges (
            id BIGSERIAL PRIMARY KEY,
            owner_id BIGINT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL CHECK (kind IN ('time_bound', 'self_paced')),
            starts_on DATE,
            ends_on DATE,
            num_days INT NOT NULL DEFAULT 0,
            reminder_cron TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS cohorts (
            id BIGSERIAL PRIMARY KEY,
            challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
            started_on DATE NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(challenge_id, started_on)
        );`,
	`CREATE TABLE IF NOT EXISTS memberships (
            challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            cohort_id BIGINT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(challenge_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS posts (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            challenge_id BIGINT REFERENCES challenges(id) ON DELETE CASCADE,
            cohort_id BIGINT NOT NULL DEFAULT 0,
            body TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            video_url TEXT NOT NULL DEFAULT '',
            client_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS check_ins (
            id BIGSERIAL PRIMARY KEY,
            challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
            cohort_id BIGINT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            video_url TEXT NOT NULL DEFAULT '',
            client_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS comments (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            parent_kind TEXT NOT NULL CHECK (parent_kind IN ('post', 'challenge', 'check_in', 'thread', 'reply')),
            parent_id BIGINT NOT NULL,
            challenge_id BIGINT NOT NULL DEFAULT 0,
            cohort_id BIGINT NOT NULL DEFAULT 0,
            body TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            video_url TEXT NOT NULL DEFAULT '',
            client_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS comments_parent_idx ON comments(parent_kind, parent_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS check_ins_cohort_idx ON check_ins(challenge_id, cohort_id, created_at);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS posts_client_idx ON posts(user_id, client_id) WHERE client_id <> '';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS check_ins_client_idx ON check_ins(user_id, client_id) WHERE client_id <> '';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS comments_client_idx ON comments(user_id, client_id) WHERE client_id <> '';`,
	`CREATE TABLE IF NOT EXISTS likes (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            target_kind TEXT NOT NULL CHECK (target_kind IN ('post', 'check_in', 'comment')),
            target_id BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(user_id, target_kind, target_id)
        );`,
}
