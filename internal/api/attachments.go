package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/versebook/internal/assets"
	"github.com/starford/versebook/internal/verseservice"
)

// AttachmentHandler accepts attachment uploads and, for backends that keep
// assets on local disk, serves them back.
type AttachmentHandler struct {
	svc      *verseservice.Service
	assetDir string
}

// NewAttachmentHandler creates a handler. assetDir may be empty when assets
// are served by the remote store itself.
func NewAttachmentHandler(svc *verseservice.Service, assetDir string) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, assetDir: assetDir}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the asset dir.
func (h *AttachmentHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.assetDir, cleaned)
	if !strings.HasPrefix(abs, filepath.Clean(h.assetDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes asset directory")
	}
	return abs, nil
}

// ServeFile handles GET /assets/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments. It accepts multipart/form-data with
// a "file" field, or a JSON body naming a URL or data URI to import.
//
//	@Summary		Upload an image attachment
//	@Tags			attachments
//	@Accept			mpfd
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	assets.Asset
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments [post]
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		h.uploadSource(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, assets.MaxSize+1<<20)
	if err := r.ParseMultipartForm(assets.MaxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	a, err := h.svc.UploadAttachment(r.Context(), data, header.Filename)
	if err != nil {
		writeError(w, "upload attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AttachmentHandler) uploadSource(w http.ResponseWriter, r *http.Request) {
	var req AttachmentSourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.svc.UploadAttachmentSource(r.Context(), req.Source, req.Filename)
	if err != nil {
		writeError(w, "import attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
