package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/storage"
)

// MemoryStore is an in-memory storage.Provider with revision tokens,
// failure injection and call recording.
type MemoryStore struct {
	mu       sync.Mutex
	content  []byte
	revision string
	exists   bool
	seq      int
	assets   map[string][]byte

	pingErr  error
	fetchErr error
	saveErr  error

	fetches int
	saves   [][]byte
	// beforeSave runs inside Save before the token check.
	beforeSave func()
}

var _ storage.Provider = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store with no document.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string][]byte)}
}

// Put stores doc as if another client had saved it and returns the new
// revision.
func (m *MemoryStore) Put(doc *models.Document) string {
	data, err := models.Encode(doc)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commit(data)
}

// PutRaw stores content verbatim, e.g. a hand-edited file.
func (m *MemoryStore) PutRaw(content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commit(content)
}

func (m *MemoryStore) commit(data []byte) string {
	m.seq++
	m.content = append([]byte(nil), data...)
	m.revision = fmt.Sprintf("rev-%d", m.seq)
	m.exists = true
	return m.revision
}

// Document decodes the stored document.
func (m *MemoryStore) Document() *models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil
	}
	doc, err := models.Decode(m.content)
	if err != nil {
		panic(err)
	}
	return doc
}

// Revision returns the current revision token.
func (m *MemoryStore) Revision() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// FailPing makes Ping return err until cleared with nil.
func (m *MemoryStore) FailPing(err error) { m.mu.Lock(); m.pingErr = err; m.mu.Unlock() }

// FailFetch makes Fetch return err until cleared with nil.
func (m *MemoryStore) FailFetch(err error) { m.mu.Lock(); m.fetchErr = err; m.mu.Unlock() }

// FailSave makes Save return err until cleared with nil.
func (m *MemoryStore) FailSave(err error) { m.mu.Lock(); m.saveErr = err; m.mu.Unlock() }

// BeforeSave registers fn to run at the start of the next saves.
func (m *MemoryStore) BeforeSave(fn func()) { m.mu.Lock(); m.beforeSave = fn; m.mu.Unlock() }

// Saves returns the number of accepted saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

// Fetches returns the number of Fetch calls.
func (m *MemoryStore) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Asset returns an uploaded asset.
func (m *MemoryStore) Asset(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.assets[name]
	return data, ok
}

// Ping implements storage.Provider.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// Fetch implements storage.Provider.
func (m *MemoryStore) Fetch(_ context.Context) (*storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if !m.exists {
		return nil, apperr.ErrNotFound
	}
	return &storage.Snapshot{Content: append([]byte(nil), m.content...), Revision: m.revision}, nil
}

// Save implements storage.Provider.
func (m *MemoryStore) Save(_ context.Context, content []byte, revision string) (storage.Receipt, error) {
	m.mu.Lock()
	hook := m.beforeSave
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return storage.Receipt{}, m.saveErr
	}
	if (m.exists && revision != m.revision) || (!m.exists && revision != "") {
		return storage.Receipt{}, fmt.Errorf("memory: revision %q is stale: %w", revision, apperr.ErrConflict)
	}
	rev := m.commit(content)
	m.saves = append(m.saves, append([]byte(nil), content...))
	return storage.Receipt{Revision: rev}, nil
}

// UploadAsset implements storage.AssetStore.
func (m *MemoryStore) UploadAsset(_ context.Context, data []byte, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[name]; ok {
		return "", apperr.ErrAlreadyExists
	}
	m.assets[name] = append([]byte(nil), data...)
	return "memory://images/" + name, nil
}

// Describe implements storage.Provider.
func (m *MemoryStore) Describe() string { return "memory" }
