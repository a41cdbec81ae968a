package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate creates the schema when it does not exist yet, mirroring how the
// bot bootstraps its own storage on first run.
func Migrate(db *sqlx.DB) error {
	blobType := "BLOB"
	if db.DriverName() == "postgres" {
		blobType = "BYTEA"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL UNIQUE,
			moodle_login TEXT NOT NULL DEFAULT '',
			sealed_credentials %s,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			auth_failed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, blobType),
		`CREATE TABLE IF NOT EXISTS lessons (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_checked_at TIMESTAMP,
			last_marked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_attempts (
			id TEXT PRIMARY KEY,
			lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
			occurrence_start TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (lesson_id, occurrence_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lessons_user ON lessons (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_lesson ON attendance_attempts (lesson_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
