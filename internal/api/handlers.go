package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/syncengine"
	"github.com/starford/versebook/internal/verseservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *verseservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *verseservice.Service) *Handler {
	return &Handler{svc: svc}
}

// GetDocument handles GET /api/document.
//
//	@Summary		Get the whole document in its persisted shape
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	models.Document
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, _ *http.Request) {
	data, err := models.Encode(h.svc.Document())
	if err != nil {
		writeError(w, "encode document", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetStatus handles GET /api/status.
//
//	@Summary		Get the sync status
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncengine.Info
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.svc.Categories()})
}

// CreateCategory handles POST /api/categories.
//
//	@Summary		Create a category
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCategoryRequest	true	"Category to create"
//	@Success		201		{object}	verseservice.CategoryItem
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories [post]
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.AddCategory(req.ParentID, req.Name)
	if err != nil {
		writeError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// RenameCategory handles PATCH /api/categories/{id}.
func (h *Handler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	var req RenameCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RenameCategory(chi.URLParam(r, "id"), req.Name); err != nil {
		writeError(w, "rename category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCategory handles DELETE /api/categories/{id}.
//
//	@Summary		Delete a category with all its verses and subcategories
//	@Tags			categories
//	@Param			id	path	string	true	"Category id"
//	@Success		204	"Category deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id} [delete]
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderCategories handles POST /api/categories/reorder.
func (h *Handler) ReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ReorderCategories(req.ParentID, req.OldIndex, req.NewIndex); err != nil {
		writeError(w, "reorder categories", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateVerse handles POST /api/categories/{id}/verses.
//
//	@Summary		Add a verse to a category
//	@Tags			verses
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Category id"
//	@Param			body	body		CreateVerseRequest	true	"Verse to add"
//	@Success		201		{object}	verseservice.VerseDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id}/verses [post]
func (h *Handler) CreateVerse(w http.ResponseWriter, r *http.Request) {
	var req CreateVerseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.svc.AddVerse(chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, "create verse", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// ReorderVerses handles POST /api/categories/{id}/verses/reorder.
func (h *Handler) ReorderVerses(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ReorderVerses(chi.URLParam(r, "id"), req.OldIndex, req.NewIndex); err != nil {
		writeError(w, "reorder verses", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteVerse handles DELETE /api/categories/{id}/verses/{verseID}.
func (h *Handler) DeleteVerse(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteVerse(chi.URLParam(r, "id"), chi.URLParam(r, "verseID")); err != nil {
		writeError(w, "delete verse", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetVerse handles GET /api/verses/{id}.
//
//	@Summary		Get a verse with its category path and passage link
//	@Tags			verses
//	@Produce		json
//	@Param			id	path		string	true	"Verse id"
//	@Success		200	{object}	verseservice.VerseDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/verses/{id} [get]
func (h *Handler) GetVerse(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Verse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get verse", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateVerse handles PATCH /api/verses/{id}.
func (h *Handler) UpdateVerse(w http.ResponseWriter, r *http.Request) {
	var req UpdateVerseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.svc.UpdateVerse(chi.URLParam(r, "id"), req.update())
	if err != nil {
		writeError(w, "update verse", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Save handles POST /api/sync/save.
//
//	@Summary		Write the document to the remote store
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	SyncResponse
//	@Failure		502	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Save(r.Context())
	writeSync(w, "save", res, err)
}

// Pull handles POST /api/sync/pull.
func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Pull(r.Context())
	writeSync(w, "pull", res, err)
}

// Resolve handles POST /api/sync/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Resolve(r.Context(), syncengine.Choice(req.Choice))
	writeSync(w, "resolve", res, err)
}

func writeSync(w http.ResponseWriter, op string, res syncengine.Result, err error) {
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			writeError(w, op, err)
			return
		}
		writeJSON(w, status, SyncResponse{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Result: res})
}

// History handles GET /api/sync/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.History(limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across verses
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Ready handles GET /health/ready. The service is ready once the initial load
// has finished.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	info := h.svc.Status()
	if info.Status == syncengine.StatusLoading {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(info.Status)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
