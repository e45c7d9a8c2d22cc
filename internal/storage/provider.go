// Package storage implements the remote store collaborator: whole-document
// fetch and save against a version-controlled file store, plus out-of-band
// binary asset uploads.
package storage

import (
	"context"
	"fmt"
	"time"
)

// DefaultDataFile is the logical path of the persisted document.
const DefaultDataFile = "bible-index-data.json"

// DefaultAssetDir is where uploaded assets live inside the store.
const DefaultAssetDir = "images"

// Snapshot is the persisted document blob together with the revision token
// the store requires to accept the next write.
type Snapshot struct {
	Content  []byte
	Revision string
}

// Receipt describes a successful save.
type Receipt struct {
	Revision string    `json:"revision"`
	Commit   string    `json:"commit,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// AssetStore stores binary attachments and returns a stable URL for them.
type AssetStore interface {
	UploadAsset(ctx context.Context, data []byte, name string) (string, error)
}

// Provider is the contract every remote store backend satisfies.
type Provider interface {
	AssetStore
	// Ping reports whether the store is configured and reachable.
	Ping(ctx context.Context) error
	// Fetch returns the last persisted snapshot, or apperr.ErrNotFound when
	// no document exists yet.
	Fetch(ctx context.Context) (*Snapshot, error)
	// Save replaces the whole document. revision must be the token of the
	// snapshot the content was derived from ("" when none existed); a stale
	// token is rejected with apperr.ErrConflict.
	Save(ctx context.Context, content []byte, revision string) (Receipt, error)
	// Describe names the backend and location for logs.
	Describe() string
}

// LocalAssets is implemented by backends whose assets live on the local
// disk and can be served directly.
type LocalAssets interface {
	AssetDir() string
}

// CommitMessage is the description recorded with every document save.
func CommitMessage(now time.Time) string {
	return fmt.Sprintf("Update bible index - %s", now.UTC().Format(time.RFC3339))
}

func assetMessage(name string) string {
	return fmt.Sprintf("Add image %s", name)
}
