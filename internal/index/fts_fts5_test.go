//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM verses_fts`).Scan(&count); err != nil {
		t.Fatalf("verses_fts table missing: %v", err)
	}
}

func TestFTS5_IgnoresDiacritics(t *testing.T) {
	db := testDB(t)
	doc := sampleDoc()
	doc.Categories[0].Verses[0].Notes = "Épître aux Hébreux"
	if _, err := db.Reindex(doc); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("hebreux", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].VerseID != "v1" {
		t.Errorf("results = %+v", results)
	}
}

func TestFTS5_PunctuationIsLiteral(t *testing.T) {
	db := testDB(t)
	if _, err := db.Reindex(sampleDoc()); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("11:1", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].VerseID != "v1" {
		t.Errorf("results = %+v", results)
	}
}

func TestMatchQuery(t *testing.T) {
	if got := matchQuery(`faith "hope`); got != `"faith" """hope"` {
		t.Errorf("matchQuery = %q", got)
	}
}
