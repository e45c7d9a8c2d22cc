package index

import "github.com/starford/versebook/internal/models"

// VerseIndex defines the search and history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type VerseIndex interface {
	Reindex(doc *models.Document) (bool, error)
	Search(query string, limit int) ([]SearchResult, error)
	Count() (int, error)
	RecordSync(e SyncEntry) error
	History(limit int) ([]SyncEntry, error)
	Close() error
}

// Verify *DB satisfies VerseIndex at compile time.
var _ VerseIndex = (*DB)(nil)
