// Package assets validates and names binary attachments before they are
// handed to the asset store.
package assets

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/storage"
)

// MaxSize is the largest accepted attachment.
const MaxSize = 10 << 20 // 10 MB

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Asset describes a stored attachment.
type Asset struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// Intake turns raw bytes, data URIs and remote URLs into stored assets.
type Intake struct {
	store  storage.AssetStore
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

// Option configures an Intake.
type Option func(*Intake)

// WithHTTPClient overrides the client used to download remote URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(in *Intake) { in.client = c }
}

// WithClock overrides the time source of generated names.
func WithClock(now func() time.Time) Option {
	return func(in *Intake) { in.now = now }
}

// New returns an Intake writing to store.
func New(store storage.AssetStore, opts ...Option) *Intake {
	in := &Intake{
		store:   store,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.client == nil {
		in.client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return checkBlockedHost(req.URL.Hostname())
			},
		}
	}
	return in
}

// Upload validates data and stores it under a unique name derived from
// filename.
func (in *Intake) Upload(ctx context.Context, data []byte, filename string) (Asset, error) {
	if len(data) == 0 {
		return Asset{}, fmt.Errorf("%w: empty file", apperr.ErrValidation)
	}
	if len(data) > MaxSize {
		return Asset{}, fmt.Errorf("%w: file too large: %d bytes (max %d)", apperr.ErrValidation, len(data), MaxSize)
	}
	filename = sanitizeFilename(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return Asset{}, fmt.Errorf("%w: unsupported file extension: %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", apperr.ErrValidation, ext)
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return Asset{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	name := in.uniqueName(filename)
	u, err := in.store.UploadAsset(ctx, data, name)
	if err != nil {
		return Asset{}, fmt.Errorf("assets: upload %s: %w", name, err)
	}
	return Asset{Name: name, URL: u, Size: len(data), ContentType: contentType(data, ext)}, nil
}

// UploadSource accepts a data: URI or an http(s) URL. filename may be empty,
// in which case one is derived from the source.
func (in *Intake) UploadSource(ctx context.Context, source, filename string) (Asset, error) {
	var data []byte
	var ext string
	var err error
	if strings.HasPrefix(source, "data:") {
		data, ext, err = DecodeDataURI(source)
	} else {
		data, ext, err = in.fetch(ctx, source)
	}
	if err != nil {
		return Asset{}, err
	}
	if filename == "" {
		filename = filenameFromURL(source, ext)
	}
	return in.Upload(ctx, data, filename)
}

// uniqueName prefixes the sanitized name with a ULID so repeated uploads of
// the same file never collide and names sort by upload time.
func (in *Intake) uniqueName(filename string) string {
	in.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(in.now()), in.entropy)
	in.mu.Unlock()
	return strings.ToLower(id.String()) + "-" + filename
}

// DecodeDataURI parses a data:[<mediatype>];base64,<data> URI and returns
// the payload and the extension matching its media type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("%w: invalid data URI: missing comma separator", apperr.ErrValidation)
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: only base64 data URIs are supported", apperr.ErrValidation)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid base64 data: %v", apperr.ErrValidation, err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("%w: unsupported MIME type in data URI: %s", apperr.ErrValidation, mime)
	}
	return data, ext, nil
}

// fetch downloads a file from an HTTP/HTTPS URL.
func (in *Intake) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid URL: %v", apperr.ErrValidation, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("%w: unsupported scheme: %s (only http/https)", apperr.ErrValidation, parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, "", apperr.Transport("assets: download", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.Transport("assets: download", resp.StatusCode, errors.New(resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, "", apperr.Transport("assets: download", resp.StatusCode, err)
	}
	if len(data) > MaxSize {
		return nil, "", fmt.Errorf("%w: file too large: exceeds %d bytes", apperr.ErrValidation, MaxSize)
	}

	ct := resp.Header.Get("Content-Type")
	return data, mimeToExt[strings.Split(ct, ";")[0]], nil
}

// filenameFromURL extracts a filename from a URL, falling back to "asset".
func filenameFromURL(rawURL, fallbackExt string) string {
	ext := fallbackExt
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return "asset" + ext
	}
	parsed, err := url.Parse(rawURL)
	if err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return "asset" + ext
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "asset"
	}
	return name
}

func contentType(data []byte, ext string) string {
	if ext == ".svg" {
		return "image/svg+xml"
	}
	return strings.Split(http.DetectContentType(data), ";")[0]
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	detectedExt := mimeToExt[strings.Split(detected, ";")[0]]

	switch ext {
	case ".jpg", ".jpeg":
		if detectedExt != ".jpg" {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if detectedExt != ext {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
