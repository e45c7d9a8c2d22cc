// Package verseservice is the application layer shared by the HTTP API and
// the MCP server. It drives the sync engine and keeps the search index, the
// sync history and the event stream in step with it.
package verseservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/assets"
	"github.com/starford/versebook/internal/document"
	"github.com/starford/versebook/internal/index"
	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/parser"
	"github.com/starford/versebook/internal/sse"
	"github.com/starford/versebook/internal/syncengine"
)

// CategoryItem is one category in the flattened tree listing.
type CategoryItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ParentID      string `json:"parent_id,omitempty"`
	Level         int    `json:"level"`
	Order         int    `json:"order"`
	Path          string `json:"path"`
	Verses        int    `json:"verses"`
	Subcategories int    `json:"subcategories"`
}

// VerseDetail is a verse with its location and passage link.
type VerseDetail struct {
	Verse        *models.Verse     `json:"verse"`
	CategoryID   string            `json:"category_id"`
	CategoryPath string            `json:"category_path"`
	Link         string            `json:"link,omitempty"`
	Parsed       *parser.Reference `json:"parsed,omitempty"`
}

// VerseInput carries the fields of a new verse.
type VerseInput struct {
	Reference string
	Text      string
	Notes     string
	Images    []string
}

// Service coordinates the engine, index, event broker and asset intake.
type Service struct {
	engine *syncengine.Engine
	db     index.VerseIndex
	broker *sse.Broker
	intake *assets.Intake
	linker *parser.Linker
	logger *slog.Logger
}

// New wires the service and subscribes it to engine events. broker and
// intake may be nil.
func New(engine *syncengine.Engine, db index.VerseIndex, broker *sse.Broker, intake *assets.Intake, linker *parser.Linker, logger *slog.Logger) *Service {
	if linker == nil {
		linker = parser.NewLinker("", "")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{engine: engine, db: db, broker: broker, intake: intake, linker: linker, logger: logger}
	engine.Subscribe(s.handle)
	return s
}

// Document returns a copy of the active document.
func (s *Service) Document() *models.Document { return s.engine.Document() }

// Status returns the engine state.
func (s *Service) Status() syncengine.Info { return s.engine.Info() }

// Categories returns every category in display order with its path.
func (s *Service) Categories() []CategoryItem {
	doc := s.engine.Document()
	out := []CategoryItem{}
	parents := map[string]string{}
	doc.Walk(func(c *models.Category, level int, path []string) {
		for _, sub := range c.Subcategories {
			parents[sub.ID] = c.ID
		}
		out = append(out, CategoryItem{
			ID:            c.ID,
			Name:          c.Name,
			ParentID:      parents[c.ID],
			Level:         level,
			Order:         c.Order,
			Path:          strings.Join(path, " / "),
			Verses:        len(c.Verses),
			Subcategories: len(c.Subcategories),
		})
	})
	return out
}

// location resolves a parent id into a document location; "" is the root.
func (s *Service) location(parentID string) (document.Location, error) {
	if parentID == "" {
		return document.Root(), nil
	}
	_, level, _, ok := s.engine.Category(parentID)
	if !ok {
		return document.Location{}, apperr.Invalid(apperr.InvalidParent, "parent %s does not exist", parentID)
	}
	if level >= models.Level2 {
		return document.Location{}, apperr.Invalid(apperr.InvalidParent, "categories cannot be nested below level %d", models.Level2)
	}
	return document.LocationFor(parentID, level), nil
}

// AddCategory creates a category under parentID ("" for the root level).
func (s *Service) AddCategory(parentID, name string) (CategoryItem, error) {
	loc, err := s.location(parentID)
	if err != nil {
		return CategoryItem{}, err
	}
	c, err := s.engine.AddCategory(loc, name)
	if err != nil {
		return CategoryItem{}, err
	}
	return CategoryItem{
		ID:       c.ID,
		Name:     c.Name,
		ParentID: parentID,
		Level:    loc.Level(),
		Order:    c.Order,
		Path:     s.categoryPath(c.ID),
	}, nil
}

// RenameCategory renames a category.
func (s *Service) RenameCategory(id, name string) error {
	return s.engine.RenameCategory(id, name)
}

// DeleteCategory removes a category and everything below it.
func (s *Service) DeleteCategory(id string) error {
	return s.engine.DeleteCategory(id)
}

// ReorderCategories moves one child of parentID ("" for the root level).
func (s *Service) ReorderCategories(parentID string, oldIndex, newIndex int) error {
	loc, err := s.location(parentID)
	if err != nil {
		return err
	}
	return s.engine.ReorderCategories(loc, oldIndex, newIndex)
}

// AddVerse appends a verse to a category.
func (s *Service) AddVerse(categoryID string, in VerseInput) (*VerseDetail, error) {
	v, err := s.engine.AddVerse(categoryID, in.Reference, in.Text, in.Notes, in.Images)
	if err != nil {
		return nil, err
	}
	return s.detail(v, categoryID), nil
}

// UpdateVerse merges fields into a verse.
func (s *Service) UpdateVerse(id string, fields document.VerseUpdate) (*VerseDetail, error) {
	v, err := s.engine.UpdateVerse(id, fields)
	if err != nil {
		return nil, err
	}
	_, owner, _ := s.engine.Verse(id)
	return s.detail(v, owner), nil
}

// DeleteVerse removes a verse.
func (s *Service) DeleteVerse(categoryID, id string) error {
	return s.engine.DeleteVerse(categoryID, id)
}

// ReorderVerses moves one verse within its category.
func (s *Service) ReorderVerses(categoryID string, oldIndex, newIndex int) error {
	return s.engine.ReorderVerses(categoryID, oldIndex, newIndex)
}

// Verse returns one verse with its location and link.
func (s *Service) Verse(id string) (*VerseDetail, error) {
	v, owner, ok := s.engine.Verse(id)
	if !ok {
		return nil, apperr.Invalid(apperr.NotFound, "verse %s does not exist", id)
	}
	return s.detail(v, owner), nil
}

func (s *Service) detail(v *models.Verse, categoryID string) *VerseDetail {
	d := &VerseDetail{Verse: v, CategoryID: categoryID, CategoryPath: s.categoryPath(categoryID)}
	if ref, ok := parser.Parse(v.Reference); ok {
		d.Parsed = &ref
		d.Link = s.linker.DeepLink(v.Reference)
	}
	return d
}

func (s *Service) categoryPath(id string) string {
	var names []string
	s.engine.View(func(t *document.Tree) {
		for id != "" {
			c, _, ok := t.Category(id)
			if !ok {
				return
			}
			names = append([]string{c.Name}, names...)
			parent, _ := t.ParentOf(id)
			id = ""
			if parent != nil {
				id = parent.ID
			}
		}
	})
	return strings.Join(names, " / ")
}

// Load performs the initial fetch.
func (s *Service) Load(ctx context.Context) (syncengine.Result, error) {
	return s.engine.Load(ctx)
}

// Save writes the document to the remote store.
func (s *Service) Save(ctx context.Context) (syncengine.Result, error) {
	return s.engine.Save(ctx)
}

// Pull reconciles with the remote store.
func (s *Service) Pull(ctx context.Context) (syncengine.Result, error) {
	return s.engine.Sync(ctx)
}

// Resolve settles a pending conflict.
func (s *Service) Resolve(ctx context.Context, choice syncengine.Choice) (syncengine.Result, error) {
	return s.engine.Resolve(ctx, choice)
}

// Search queries the verse index.
func (s *Service) Search(query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// History lists recent sync outcomes, newest first.
func (s *Service) History(limit int) ([]index.SyncEntry, error) {
	return s.db.History(limit)
}

// UploadAttachment validates and stores raw bytes.
func (s *Service) UploadAttachment(ctx context.Context, data []byte, filename string) (assets.Asset, error) {
	if s.intake == nil {
		return assets.Asset{}, fmt.Errorf("%w: no asset store", apperr.ErrConfiguration)
	}
	return s.intake.Upload(ctx, data, filename)
}

// UploadAttachmentSource stores an asset from a data URI or http(s) URL.
func (s *Service) UploadAttachmentSource(ctx context.Context, source, filename string) (assets.Asset, error) {
	if s.intake == nil {
		return assets.Asset{}, fmt.Errorf("%w: no asset store", apperr.ErrConfiguration)
	}
	return s.intake.UploadSource(ctx, source, filename)
}

// RemoteChanged is called when the store reports an out-of-band write. It
// only informs the views; pulling stays a user decision.
func (s *Service) RemoteChanged(revision string) {
	if revision == s.engine.Revision() {
		return
	}
	s.logger.Info("remote: changed", slog.String("revision", revision))
	s.publish(sse.Event{Type: sse.TypeRemoteChanged, Data: map[string]string{"revision": revision}})
}

// Reindex rebuilds the search index from the active document.
func (s *Service) Reindex() error {
	_, err := s.db.Reindex(s.engine.Document())
	return err
}

// handle keeps the index, history and views in step with the engine.
func (s *Service) handle(ev syncengine.Event) {
	switch ev.Kind {
	case syncengine.EventMutated, syncengine.EventLoaded, syncengine.EventSaved, syncengine.EventResolved:
		s.reindex()
	case syncengine.EventSynced:
		if ev.Outcome == syncengine.OutcomeAdoptedRemote {
			s.reindex()
		}
	}

	if ev.Kind != syncengine.EventMutated {
		entry := index.SyncEntry{
			Op:       ev.Op,
			Outcome:  string(ev.Outcome),
			Status:   string(ev.Status),
			Revision: ev.Revision,
			At:       ev.At,
		}
		if ev.Err != nil {
			entry.Error = ev.Err.Error()
		}
		if err := s.db.RecordSync(entry); err != nil {
			s.logger.Warn("history: record failed", slog.String("error", err.Error()))
		}
	}

	if s.broker == nil {
		return
	}
	s.publish(sse.Event{Type: sse.TypeStatusChanged, Data: s.engine.Info()})
	switch {
	case ev.Kind == syncengine.EventConflict:
		s.publish(sse.Event{Type: sse.TypeConflictPending, Data: ev.Conflict})
	case ev.Kind == syncengine.EventMutated,
		ev.Kind == syncengine.EventLoaded,
		ev.Outcome == syncengine.OutcomeAdoptedRemote,
		ev.Outcome == syncengine.OutcomeUsedRemote:
		s.broker.PublishDocumentChanged(models.Summarize(s.engine.Document()))
	}
}

func (s *Service) reindex() {
	if err := s.Reindex(); err != nil {
		s.logger.Warn("index: reindex failed", slog.String("error", err.Error()))
	}
}

func (s *Service) publish(ev sse.Event) {
	if s.broker != nil {
		s.broker.Publish(ev)
	}
}
