package index

import (
	"fmt"
	"time"
)

// SyncEntry is one row of the sync history.
type SyncEntry struct {
	ID       int64     `json:"id"`
	Op       string    `json:"op"`
	Outcome  string    `json:"outcome"`
	Status   string    `json:"status"`
	Revision string    `json:"revision,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// RecordSync appends e to the history.
func (db *DB) RecordSync(e SyncEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO sync_log (op, outcome, status, revision, error, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Op, e.Outcome, e.Status, e.Revision, e.Error, e.At.UTC())
	if err != nil {
		return fmt.Errorf("index: record sync: %w", err)
	}
	return nil
}

// History returns the most recent entries, newest first.
func (db *DB) History(limit int) ([]SyncEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, op, outcome, status, revision, error, at
		FROM sync_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: history: %w", err)
	}
	defer rows.Close()

	out := []SyncEntry{}
	for rows.Next() {
		var e SyncEntry
		if err := rows.Scan(&e.ID, &e.Op, &e.Outcome, &e.Status, &e.Revision, &e.Error, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
