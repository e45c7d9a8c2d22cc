package internal

import (
	"fmt"
	"os"

	"github.com/starford/versebook/internal/storage"
)

// openStore builds the configured remote store and the asset store that
// attachments are written to.
func openStore(cfg *Config) (storage.Provider, storage.AssetStore, error) {
	var (
		store storage.Provider
		err   error
	)
	r := cfg.Remote
	switch r.Backend {
	case BackendGitHub:
		store, err = storage.NewGitHub(storage.GitHubOptions{
			Owner:    r.GitHub.Owner,
			Repo:     r.GitHub.Repo,
			Token:    r.GitHub.Token,
			Branch:   r.GitHub.Branch,
			APIURL:   r.GitHub.APIURL,
			DataFile: r.DataFile,
			AssetDir: r.AssetDir,
		})
	case BackendGit:
		store, err = storage.NewGit(storage.GitOptions{
			Path:         r.Git.Path,
			Branch:       r.Git.Branch,
			Author:       r.Git.Author,
			DataFile:     r.DataFile,
			AssetDir:     r.AssetDir,
			AssetBaseURL: r.AssetBaseURL,
		})
	case BackendFS:
		if err = os.MkdirAll(r.FS.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
		store, err = storage.NewFS(r.FS.Path, storage.FSOptions{
			DataFile:     r.DataFile,
			AssetDir:     r.AssetDir,
			AssetBaseURL: r.AssetBaseURL,
		})
	default:
		err = fmt.Errorf("unknown remote backend %q", r.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init %s store: %w", r.Backend, err)
	}

	if cfg.Assets.Backend != AssetsS3 {
		return store, store, nil
	}
	s3 := cfg.Assets.S3
	bucket, err := storage.NewS3Assets(storage.S3Options{
		Endpoint:  s3.Endpoint,
		Bucket:    s3.Bucket,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Region:    s3.Region,
		Prefix:    s3.Prefix,
		UseSSL:    s3.UseSSL,
		PublicURL: s3.PublicURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init s3 assets: %w", err)
	}
	return store, bucket, nil
}
