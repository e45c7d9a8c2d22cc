package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/checksum"
)

// FSOptions configures the directory-backed store.
type FSOptions struct {
	DataFile     string
	AssetDir     string
	AssetBaseURL string
}

// FS implements Provider backed by a local directory. The revision token is
// the SHA-256 of the data file.
type FS struct {
	root         string // absolute path to the store directory
	dataFile     string
	assetDir     string
	assetBaseURL string

	mu  sync.Mutex
	now func() time.Time
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts FSOptions) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if opts.DataFile == "" {
		opts.DataFile = DefaultDataFile
	}
	if opts.AssetDir == "" {
		opts.AssetDir = DefaultAssetDir
	}
	if opts.AssetBaseURL == "" {
		opts.AssetBaseURL = "/assets"
	}
	return &FS{
		root:         abs,
		dataFile:     opts.DataFile,
		assetDir:     opts.AssetDir,
		assetBaseURL: strings.TrimSuffix(opts.AssetBaseURL, "/"),
		now:          time.Now,
	}, nil
}

// safePath resolves a relative path against the root and rejects any
// result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes store root: %s", rel)
	}
	return abs, nil
}

// Describe implements Provider.
func (f *FS) Describe() string {
	return "fs:" + filepath.Join(f.root, f.dataFile)
}

// AssetDir implements LocalAssets.
func (f *FS) AssetDir() string {
	return filepath.Join(f.root, f.assetDir)
}

// DataPath returns the absolute path of the document file.
func (f *FS) DataPath() string {
	return filepath.Join(f.root, f.dataFile)
}

// Ping implements Provider.
func (f *FS) Ping(_ context.Context) error {
	info, err := os.Stat(f.root)
	if err != nil {
		return apperr.Transport("fs: ping", 0, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", apperr.ErrConfiguration, f.root)
	}
	return nil
}

// Fetch implements Provider.
func (f *FS) Fetch(_ context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FS) read() (*Snapshot, error) {
	abs, err := f.safePath(f.dataFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Transport("fs: read "+f.dataFile, 0, err)
	}
	return &Snapshot{Content: data, Revision: checksum.Sum(data)}, nil
}

// Save implements Provider. The token check and the write happen under one
// lock so concurrent savers cannot both pass the check.
func (f *FS) Save(_ context.Context, content []byte, revision string) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if revision != "" {
			return Receipt{}, fmt.Errorf("storage: %s was removed: %w", f.dataFile, apperr.ErrConflict)
		}
	case err != nil:
		return Receipt{}, err
	case current.Revision != revision:
		return Receipt{}, fmt.Errorf("storage: revision %q is stale: %w", revision, apperr.ErrConflict)
	}

	if err := f.write(f.dataFile, content); err != nil {
		return Receipt{}, apperr.Transport("fs: write "+f.dataFile, 0, err)
	}
	return Receipt{Revision: checksum.Sum(content), SavedAt: f.now()}, nil
}

// UploadAsset implements AssetStore.
func (f *FS) UploadAsset(_ context.Context, data []byte, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: invalid asset name: %q", name)
	}
	rel := filepath.Join(f.assetDir, name)

	f.mu.Lock()
	defer f.mu.Unlock()
	abs, err := f.safePath(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		return "", fmt.Errorf("storage: asset %s: %w", name, apperr.ErrAlreadyExists)
	}
	if err := f.write(rel, data); err != nil {
		return "", apperr.Transport("fs: write asset", 0, err)
	}
	return f.assetBaseURL + "/" + name, nil
}

// write atomically writes content: tmp file → fsync → rename.
func (f *FS) write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".versebook-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
