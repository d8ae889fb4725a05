package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the amora schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               VARCHAR(36)  PRIMARY KEY,
			username         VARCHAR(50)  UNIQUE NOT NULL,
			email            VARCHAR(100) UNIQUE,
			hashed_password  VARCHAR(255) NOT NULL,
			display_name     VARCHAR(100) NOT NULL,
			avatar_url       TEXT         NOT NULL DEFAULT '',
			age              INTEGER,
			country          VARCHAR(100),
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			is_online        BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id          VARCHAR(36) PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_pinned   BOOLEAN     NOT NULL DEFAULT FALSE,
			is_archived BOOLEAN     NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id         VARCHAR(36) NOT NULL REFERENCES users(id),
			conversation_id VARCHAR(36) NOT NULL REFERENCES conversations(id),
			joined_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, conversation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              VARCHAR(36) PRIMARY KEY,
			content         TEXT        NOT NULL,
			conversation_id VARCHAR(36) NOT NULL REFERENCES conversations(id),
			sender_id       VARCHAR(36) NOT NULL REFERENCES users(id),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_conv ON conversation_participants(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at ASC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
