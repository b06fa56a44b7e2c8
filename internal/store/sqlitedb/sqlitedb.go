// Package sqlitedb opens the embedded database used when Firestore is not
// configured.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Schema creates the message and profile tables.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	uid           TEXT NOT NULL,
	id            TEXT NOT NULL,
	type          TEXT NOT NULL,
	content       TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	tts_audio_url TEXT,
	is_error      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (uid, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_uid_timestamp ON messages(uid, timestamp DESC, id DESC);

CREATE TABLE IF NOT EXISTS profiles (
	uid             TEXT PRIMARY KEY,
	email           TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	profile_picture TEXT NOT NULL DEFAULT '',
	personality     TEXT NOT NULL,
	language        TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
`

// Open opens (creating if needed) the database at path and applies Schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps ":memory:" databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}
