// Package database holds the SQLite schema, migrations, and connection
// configuration shared by the repository implementation and its tests.
package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema step. Migrations are embedded rather
// than loaded from disk so a single binary can bootstrap an empty database.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id                 TEXT PRIMARY KEY,
				class_code         TEXT,
				teacher_id         TEXT NOT NULL,
				teacher_language   TEXT NOT NULL DEFAULT '',
				students_count     INTEGER NOT NULL DEFAULT 0 CHECK (students_count >= 0),
				total_translations INTEGER NOT NULL DEFAULT 0,
				start_time         DATETIME NOT NULL,
				last_activity_at   DATETIME NOT NULL,
				end_time           DATETIME,
				is_active          INTEGER NOT NULL DEFAULT 1,
				quality            TEXT,
				quality_reason     TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active);
			CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON sessions(teacher_id);

			CREATE TABLE IF NOT EXISTS transcripts (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				text       TEXT NOT NULL,
				language   TEXT NOT NULL,
				timestamp  DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, timestamp);

			CREATE TABLE IF NOT EXISTS translations (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id      TEXT NOT NULL REFERENCES sessions(id),
				source_language TEXT NOT NULL,
				target_language TEXT NOT NULL,
				original_text   TEXT NOT NULL,
				translated_text TEXT NOT NULL,
				latency_ms      INTEGER NOT NULL DEFAULT 0,
				timestamp       DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_translations_session ON translations(session_id, timestamp);

			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at    DATETIME NOT NULL
			);
		`,
	},
}

// ApplyMigrations brings the database schema up to date. Each pending
// migration runs in its own transaction and is recorded in
// schema_migrations, so reruns are no-ops.
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, m := range ordered {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
