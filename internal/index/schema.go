// Package index provides a SQLite-backed verse search index, with optional
// FTS5 full-text search, and the history of sync outcomes.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS verses (
	id            TEXT PRIMARY KEY,
	category_id   TEXT NOT NULL,
	category_path TEXT NOT NULL DEFAULT '',
	reference     TEXT NOT NULL DEFAULT '',
	text          TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	images        INTEGER NOT NULL DEFAULT 0,
	position      INTEGER NOT NULL DEFAULT 0,
	modified      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_verses_category ON verses(category_id);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_log (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	op       TEXT NOT NULL,
	outcome  TEXT NOT NULL DEFAULT '',
	status   TEXT NOT NULL DEFAULT '',
	revision TEXT NOT NULL DEFAULT '',
	error    TEXT NOT NULL DEFAULT '',
	at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
