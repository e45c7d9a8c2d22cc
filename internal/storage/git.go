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

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/checksum"
)

// GitOptions configures the local git repository backend.
type GitOptions struct {
	Path         string
	Branch       string
	Author       string
	DataFile     string
	AssetDir     string
	AssetBaseURL string
}

// Git implements Provider on a local git repository. Every save is a commit
// on the configured branch and the revision token is the blob hash of the
// data file at the branch head.
type Git struct {
	path         string
	branch       string
	author       string
	dataFile     string
	assetDir     string
	assetBaseURL string

	mu   sync.Mutex
	repo *git.Repository
	now  func() time.Time
}

// NewGit opens the repository at opts.Path, initialising it when missing.
func NewGit(opts GitOptions) (*Git, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: git path is required", apperr.ErrConfiguration)
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Author == "" {
		opts.Author = "versebook"
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

	repo, err := git.PlainOpen(opts.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = initRepo(opts.Path, opts.Branch)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open repo: %w", err)
	}

	return &Git{
		path:         opts.Path,
		branch:       opts.Branch,
		author:       opts.Author,
		dataFile:     opts.DataFile,
		assetDir:     opts.AssetDir,
		assetBaseURL: strings.TrimSuffix(opts.AssetBaseURL, "/"),
		repo:         repo,
		now:          time.Now,
	}, nil
}

func initRepo(path, branch string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

// Describe implements Provider.
func (g *Git) Describe() string {
	return fmt.Sprintf("git:%s@%s/%s", g.path, g.branch, g.dataFile)
}

// AssetDir implements LocalAssets.
func (g *Git) AssetDir() string {
	return filepath.Join(g.path, g.assetDir)
}

// Ping implements Provider.
func (g *Git) Ping(_ context.Context) error {
	if _, err := g.repo.Worktree(); err != nil {
		return apperr.Transport("git: ping", 0, err)
	}
	return nil
}

// Fetch implements Provider.
func (g *Git) Fetch(_ context.Context) (*Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.head()
}

func (g *Git) head() (*Snapshot, error) {
	ref, err := g.repo.Reference(plumbing.NewBranchReferenceName(g.branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transport("git: resolve branch", 0, err)
	}
	commit, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, apperr.Transport("git: load commit", 0, err)
	}
	file, err := commit.File(g.dataFile)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transport("git: load "+g.dataFile, 0, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, apperr.Transport("git: read "+g.dataFile, 0, err)
	}
	return &Snapshot{Content: []byte(contents), Revision: file.Hash.String()}, nil
}

// Save implements Provider.
func (g *Git) Save(_ context.Context, content []byte, revision string) (Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, err := g.head()
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if revision != "" {
			return Receipt{}, fmt.Errorf("storage: %s was removed: %w", g.dataFile, apperr.ErrConflict)
		}
	case err != nil:
		return Receipt{}, err
	case current.Revision != revision:
		return Receipt{}, fmt.Errorf("storage: revision %q is stale: %w", revision, apperr.ErrConflict)
	}

	now := g.now()
	hash, err := g.commit(g.dataFile, content, CommitMessage(now), now)
	if err != nil {
		return Receipt{}, apperr.Transport("git: save", 0, err)
	}
	return Receipt{Revision: checksum.GitBlob(content), Commit: hash.String(), SavedAt: now}, nil
}

// UploadAsset implements AssetStore by committing the file under the asset
// directory.
func (g *Git) UploadAsset(_ context.Context, data []byte, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: invalid asset name: %q", name)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := os.Stat(filepath.Join(g.AssetDir(), name)); err == nil {
		return "", fmt.Errorf("storage: asset %s: %w", name, apperr.ErrAlreadyExists)
	}
	now := g.now()
	if _, err := g.commit(g.assetDir+"/"+name, data, assetMessage(name), now); err != nil {
		return "", apperr.Transport("git: upload asset", 0, err)
	}
	return g.assetBaseURL + "/" + name, nil
}

// commit writes rel into the worktree and records it on the branch.
func (g *Git) commit(rel string, content []byte, message string, when time.Time) (plumbing.Hash, error) {
	if err := g.checkoutBranch(); err != nil {
		return plumbing.ZeroHash, err
	}
	worktree, err := g.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	abs := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", rel, err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.author,
			Email: sanitizeEmail(g.author) + "@versebook.local",
			When:  when,
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	return hash, nil
}

// checkoutBranch makes the configured branch current. An unborn branch is
// selected through HEAD so the first commit creates it.
func (g *Git) checkoutBranch() error {
	branchRef := plumbing.NewBranchReferenceName(g.branch)
	if _, err := g.repo.Reference(branchRef, true); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("resolve branch %s: %w", g.branch, err)
		}
		if _, headErr := g.repo.Head(); headErr != nil {
			return g.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef))
		}
		worktree, err := g.repo.Worktree()
		if err != nil {
			return fmt.Errorf("open worktree: %w", err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
			return fmt.Errorf("create branch checkout %s: %w", g.branch, err)
		}
		return nil
	}

	head, err := g.repo.Head()
	if err == nil && head.Name() == branchRef {
		return nil
	}
	worktree, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", g.branch, err)
	}
	return nil
}

func sanitizeEmail(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('.')
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
