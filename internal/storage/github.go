package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/versebook/internal/apperr"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubOptions configures the GitHub contents API backend.
type GitHubOptions struct {
	Owner    string
	Repo     string
	Token    string
	Branch   string
	APIURL   string
	DataFile string
	AssetDir string
	Client   *http.Client
}

// GitHub implements Provider on top of the GitHub repository contents API.
// The revision token is the blob SHA reported by the API.
type GitHub struct {
	client   *http.Client
	apiURL   string
	owner    string
	repo     string
	token    string
	branch   string
	dataFile string
	assetDir string
	now      func() time.Time
}

// NewGitHub validates opts and returns a GitHub provider.
func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" || opts.Token == "" {
		return nil, fmt.Errorf("%w: github owner, repo and token are required", apperr.ErrConfiguration)
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultGitHubAPI
	}
	if opts.DataFile == "" {
		opts.DataFile = DefaultDataFile
	}
	if opts.AssetDir == "" {
		opts.AssetDir = DefaultAssetDir
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHub{
		client:   opts.Client,
		apiURL:   strings.TrimSuffix(opts.APIURL, "/"),
		owner:    opts.Owner,
		repo:     opts.Repo,
		token:    opts.Token,
		branch:   opts.Branch,
		dataFile: opts.DataFile,
		assetDir: opts.AssetDir,
		now:      time.Now,
	}, nil
}

type contentsResponse struct {
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA         string `json:"sha"`
		DownloadURL string `json:"download_url"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Describe implements Provider.
func (g *GitHub) Describe() string {
	return fmt.Sprintf("github:%s/%s@%s/%s", g.owner, g.repo, g.branch, g.dataFile)
}

func (g *GitHub) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiURL,
		url.PathEscape(g.owner), url.PathEscape(g.repo), escapePath(path))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (g *GitHub) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response. Non-2xx responses
// are returned as *apperr.TransportError carrying the status code.
func (g *GitHub) do(req *http.Request, op string) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.Transport(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperr.Transport(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Transport(op, resp.StatusCode, fmt.Errorf("%s", apiMessage(body, resp.Status)))
	}
	return body, nil
}

func apiMessage(body []byte, fallback string) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	return fallback
}

func statusOf(err error) int {
	var te *apperr.TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// Ping implements Provider by reading the repository metadata.
func (g *GitHub) Ping(ctx context.Context) error {
	target := fmt.Sprintf("%s/repos/%s/%s", g.apiURL, url.PathEscape(g.owner), url.PathEscape(g.repo))
	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	_, err = g.do(req, "github: ping")
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: %w", apperr.ErrConfiguration, err)
	}
	return err
}

// Fetch implements Provider.
func (g *GitHub) Fetch(ctx context.Context) (*Snapshot, error) {
	target := g.contentsURL(g.dataFile) + "?ref=" + url.QueryEscape(g.branch)
	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	body, err := g.do(req, "github: fetch")
	if statusOf(err) == http.StatusNotFound {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cr contentsResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, apperr.Transport("github: fetch", 0, fmt.Errorf("decode response: %w", err))
	}

	var content []byte
	if cr.Encoding == "base64" {
		content, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
		if err != nil {
			return nil, apperr.Transport("github: fetch", 0, fmt.Errorf("decode content: %w", err))
		}
	} else {
		// Files above the inline size limit come back without content.
		content, err = g.fetchRaw(ctx, target)
		if err != nil {
			return nil, err
		}
	}
	return &Snapshot{Content: content, Revision: cr.SHA}, nil
}

func (g *GitHub) fetchRaw(ctx context.Context, target string) ([]byte, error) {
	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	return g.do(req, "github: fetch raw")
}

func (g *GitHub) put(ctx context.Context, path string, pr putRequest, op string) (*putResponse, error) {
	payload, err := json.Marshal(pr)
	if err != nil {
		return nil, err
	}
	req, err := g.newRequest(ctx, http.MethodPut, g.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	body, err := g.do(req, op)
	if err != nil {
		return nil, err
	}
	var out putResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Transport(op, 0, fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

// Save implements Provider. A 409 (sha mismatch) or 422 (sha missing for an
// existing file) response is reported as apperr.ErrConflict.
func (g *GitHub) Save(ctx context.Context, content []byte, revision string) (Receipt, error) {
	now := g.now()
	out, err := g.put(ctx, g.dataFile, putRequest{
		Message: CommitMessage(now),
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.branch,
		SHA:     revision,
	}, "github: save")
	switch statusOf(err) {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return Receipt{}, fmt.Errorf("%w: %w", apperr.ErrConflict, err)
	}
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Revision: out.Content.SHA, Commit: out.Commit.SHA, SavedAt: now}, nil
}

// UploadAsset implements AssetStore and returns the raw download URL.
func (g *GitHub) UploadAsset(ctx context.Context, data []byte, name string) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: invalid asset name: %q", name)
	}
	out, err := g.put(ctx, g.assetDir+"/"+name, putRequest{
		Message: assetMessage(name),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  g.branch,
	}, "github: upload asset")
	if statusOf(err) == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("storage: asset %s: %w", name, apperr.ErrAlreadyExists)
	}
	if err != nil {
		return "", err
	}
	return out.Content.DownloadURL, nil
}
