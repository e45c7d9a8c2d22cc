package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/versebook/internal/verseservice"
)

// RouterConfig controls the optional parts of the API router.
type RouterConfig struct {
	// AuthEnabled enforces Bearer token auth with Token.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// AssetDir, if set, serves uploaded assets at GET /assets/{filename}
	// outside the auth group so views can embed them.
	AssetDir string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *verseservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(svc, cfg.AssetDir)

	r := chi.NewRouter()
	if cfg.AssetDir != "" {
		r.Get("/assets/{filename}", ah.ServeFile)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

		r.Get("/document", h.GetDocument)
		r.Get("/status", h.GetStatus)

		// Categories.
		r.Get("/categories", h.ListCategories)
		r.Post("/categories", h.CreateCategory)
		r.Post("/categories/reorder", h.ReorderCategories)
		r.Patch("/categories/{id}", h.RenameCategory)
		r.Delete("/categories/{id}", h.DeleteCategory)

		// Verses.
		r.Post("/categories/{id}/verses", h.CreateVerse)
		r.Post("/categories/{id}/verses/reorder", h.ReorderVerses)
		r.Delete("/categories/{id}/verses/{verseID}", h.DeleteVerse)
		r.Get("/verses/{id}", h.GetVerse)
		r.Patch("/verses/{id}", h.UpdateVerse)

		// Sync.
		r.Post("/sync/save", h.Save)
		r.Post("/sync/pull", h.Pull)
		r.Post("/sync/resolve", h.Resolve)
		r.Get("/sync/history", h.History)

		r.Get("/search", h.Search)
		r.Post("/attachments", ah.Upload)

		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}
	})

	return r
}
