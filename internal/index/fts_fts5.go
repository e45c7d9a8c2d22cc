//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS verses_fts USING fts5(
			id UNINDEXED,
			reference,
			text,
			notes,
			category_path,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, id, path, reference, text, notes string) error {
	_, err := tx.Exec(`INSERT INTO verses_fts (id, reference, text, notes, category_path) VALUES (?, ?, ?, ?, ?)`,
		id, reference, text, notes, path)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM verses_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// matchQuery quotes every term so punctuation such as "3:16" is matched
// literally instead of being parsed as FTS syntax.
func matchQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// Search performs an FTS5 full-text search and returns matching verses with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	q := matchQuery(query)
	if q == "" {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT v.id,
		       v.category_id,
		       v.category_path,
		       v.reference,
		       snippet(verses_fts, 2, '<b>', '</b>', '...', 32)
		FROM verses_fts
		JOIN verses v ON v.id = verses_fts.id
		WHERE verses_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
