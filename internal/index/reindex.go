package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/versebook/internal/checksum"
	"github.com/starford/versebook/internal/models"
)

const docChecksumKey = "document_checksum"

// SearchResult represents one search hit.
type SearchResult struct {
	VerseID      string `json:"verse_id"`
	CategoryID   string `json:"category_id"`
	CategoryPath string `json:"category_path"`
	Reference    string `json:"reference"`
	Snippet      string `json:"snippet"`
}

// Reindex rebuilds the verse rows from doc. It is skipped when the document
// checksum matches the last indexed one; the boolean reports whether rows
// were rewritten.
func (db *DB) Reindex(doc *models.Document) (bool, error) {
	data, err := models.Encode(doc)
	if err != nil {
		return false, fmt.Errorf("index: encode document: %w", err)
	}
	sum := checksum.Sum(data)

	var stored string
	err = db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, docChecksumKey).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("index: read checksum: %w", err)
	}
	if stored == sum {
		return false, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM verses`); err != nil {
		return false, fmt.Errorf("index: clear verses: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return false, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO verses (id, category_id, category_path, reference, text, notes, images, position, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return false, fmt.Errorf("index: prepare verse insert: %w", err)
	}
	defer stmt.Close()

	var walkErr error
	doc.Walk(func(c *models.Category, _ int, path []string) {
		if walkErr != nil {
			return
		}
		label := strings.Join(path, " / ")
		for _, v := range c.Verses {
			if _, err := stmt.Exec(v.ID, c.ID, label, v.Reference, v.Text, v.Notes, len(v.Images), v.Order, v.Modified); err != nil {
				walkErr = fmt.Errorf("index: insert verse %s: %w", v.ID, err)
				return
			}
			if err := ftsInsert(tx, v.ID, label, v.Reference, v.Text, v.Notes); err != nil {
				walkErr = err
				return
			}
		}
	})
	if walkErr != nil {
		return false, walkErr
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, docChecksumKey, sum); err != nil {
		return false, fmt.Errorf("index: store checksum: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("index: commit: %w", err)
	}
	return true, nil
}

// Count returns the number of indexed verses.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM verses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.VerseID, &r.CategoryID, &r.CategoryPath, &r.Reference, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
