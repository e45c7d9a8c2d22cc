// Package document maintains the category/verse tree invariants under
// mutation: depth of at most three levels, dense sibling order values, and
// cascading deletes.
package document

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/models"
)

// Observer is notified after every successful mutation.
type Observer interface {
	Changed(at time.Time)
}

// Option configures a Tree.
type Option func(*Tree)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// WithIDGenerator overrides how category and verse ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tree) { t.newID = gen }
}

// WithObserver registers the observer notified after each mutation.
func WithObserver(o Observer) Option {
	return func(t *Tree) { t.observer = o }
}

type categoryNode struct {
	cat    *models.Category
	parent *models.Category // nil at the root level
	level  int
}

type verseNode struct {
	verse *models.Verse
	owner *models.Category
}

// Tree owns one Document and resolves ids to direct node handles.
// It is not safe for concurrent use; the sync engine serializes access.
type Tree struct {
	doc      *models.Document
	now      func() time.Time
	newID    func() string
	observer Observer

	categories map[string]categoryNode
	verses     map[string]verseNode
}

// New wraps doc. A nil doc starts an empty document.
func New(doc *models.Document, opts ...Option) *Tree {
	t := &Tree{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	if doc == nil {
		doc = models.New(t.now())
	}
	t.Replace(doc)
	return t
}

// Document returns the owned document. Callers must not mutate it directly.
func (t *Tree) Document() *models.Document { return t.doc }

// Replace adopts doc wholesale without notifying the observer.
func (t *Tree) Replace(doc *models.Document) {
	if doc.Categories == nil {
		doc.Categories = []*models.Category{}
	}
	t.doc = doc
	t.reindex()
}

// Category resolves a category id to its node and level.
func (t *Tree) Category(id string) (*models.Category, int, bool) {
	n, ok := t.categories[id]
	if !ok {
		return nil, 0, false
	}
	return n.cat, n.level, true
}

// ParentOf returns the parent of category id, or nil for a root category.
func (t *Tree) ParentOf(id string) (*models.Category, bool) {
	n, ok := t.categories[id]
	if !ok {
		return nil, false
	}
	return n.parent, true
}

// Verse resolves a verse id to the verse and the category holding it.
func (t *Tree) Verse(id string) (*models.Verse, *models.Category, bool) {
	n, ok := t.verses[id]
	if !ok {
		return nil, nil, false
	}
	return n.verse, n.owner, true
}

// AddCategory appends a new category at the end of the sibling list at loc.
func (t *Tree) AddCategory(loc Location, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid(apperr.EmptyName, "category name is required")
	}
	siblings, parent, err := t.siblings(loc)
	if err != nil {
		return nil, err
	}
	c := &models.Category{
		ID:            t.newID(),
		Name:          name,
		Order:         len(*siblings),
		Verses:        []*models.Verse{},
		Subcategories: []*models.Category{},
	}
	*siblings = append(*siblings, c)
	resequenceCategories(*siblings)
	t.categories[c.ID] = categoryNode{cat: c, parent: parent, level: loc.Level()}
	t.touch()
	return c, nil
}

// RenameCategory changes the display name of category id.
func (t *Tree) RenameCategory(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Invalid(apperr.EmptyName, "category name is required")
	}
	n, ok := t.categories[id]
	if !ok {
		return apperr.Invalid(apperr.NotFound, "category %q not found", id)
	}
	n.cat.Name = name
	t.touch()
	return nil
}

// DeleteCategory removes category id together with all its verses and
// descendants.
func (t *Tree) DeleteCategory(id string) error {
	n, ok := t.categories[id]
	if !ok {
		return apperr.Invalid(apperr.NotFound, "category %q not found", id)
	}
	siblings := &t.doc.Categories
	if n.parent != nil {
		siblings = &n.parent.Subcategories
	}
	idx := indexOfCategory(*siblings, id)
	if idx < 0 {
		return apperr.Invalid(apperr.NotFound, "category %q not found at its expected level", id)
	}
	*siblings = append((*siblings)[:idx], (*siblings)[idx+1:]...)
	resequenceCategories(*siblings)
	t.forget(n.cat)
	t.touch()
	return nil
}

// ReorderCategories moves the sibling at oldIndex to newIndex within loc,
// preserving the relative order of the other siblings.
func (t *Tree) ReorderCategories(loc Location, oldIndex, newIndex int) error {
	siblings, _, err := t.siblings(loc)
	if err != nil {
		return err
	}
	if !inRange(oldIndex, len(*siblings)) || !inRange(newIndex, len(*siblings)) {
		return apperr.Invalid(apperr.NotFound, "no category to move from %d to %d in %s", oldIndex, newIndex, loc)
	}
	if oldIndex == newIndex {
		return nil
	}
	move(*siblings, oldIndex, newIndex)
	resequenceCategories(*siblings)
	t.touch()
	return nil
}

// AddVerse appends a verse to category categoryID.
func (t *Tree) AddVerse(categoryID, reference, text, notes string, images []string) (*models.Verse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperr.Invalid(apperr.EmptyReference, "verse reference is required")
	}
	n, ok := t.categories[categoryID]
	if !ok {
		return nil, apperr.Invalid(apperr.InvalidParent, "category %q not found", categoryID)
	}
	now := t.now()
	v := &models.Verse{
		ID:        t.newID(),
		Reference: reference,
		Text:      strings.TrimSpace(text),
		Notes:     strings.TrimSpace(notes),
		Images:    appendMissing(nil, images),
		Order:     len(n.cat.Verses),
		Created:   now,
		Modified:  now,
	}
	n.cat.Verses = append(n.cat.Verses, v)
	resequenceVerses(n.cat.Verses)
	t.verses[v.ID] = verseNode{verse: v, owner: n.cat}
	t.touchAt(now)
	return v, nil
}

// VerseUpdate lists the fields to change on a verse. Nil fields are kept.
// Images are appended to the existing list, never replacing it.
type VerseUpdate struct {
	Reference *string
	Text      *string
	Notes     *string
	Images    []string
}

// UpdateVerse merges fields into verse id and stamps its modification time.
func (t *Tree) UpdateVerse(id string, fields VerseUpdate) (*models.Verse, error) {
	n, ok := t.verses[id]
	if !ok {
		return nil, apperr.Invalid(apperr.NotFound, "verse %q not found", id)
	}
	reference := n.verse.Reference
	if fields.Reference != nil {
		reference = strings.TrimSpace(*fields.Reference)
		if reference == "" {
			return nil, apperr.Invalid(apperr.EmptyReference, "verse reference is required")
		}
	}
	v := n.verse
	v.Reference = reference
	if fields.Text != nil {
		v.Text = strings.TrimSpace(*fields.Text)
	}
	if fields.Notes != nil {
		v.Notes = strings.TrimSpace(*fields.Notes)
	}
	v.Images = appendMissing(v.Images, fields.Images)
	now := t.now()
	v.Modified = now
	t.touchAt(now)
	return v, nil
}

// DeleteVerse removes verse id from category categoryID.
func (t *Tree) DeleteVerse(categoryID, id string) error {
	n, ok := t.categories[categoryID]
	if !ok {
		return apperr.Invalid(apperr.NotFound, "category %q not found", categoryID)
	}
	idx := -1
	for i, v := range n.cat.Verses {
		if v.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.Invalid(apperr.NotFound, "verse %q not found in category %q", id, categoryID)
	}
	n.cat.Verses = append(n.cat.Verses[:idx], n.cat.Verses[idx+1:]...)
	resequenceVerses(n.cat.Verses)
	delete(t.verses, id)
	t.touch()
	return nil
}

// ReorderVerses moves the verse at oldIndex to newIndex within one category.
func (t *Tree) ReorderVerses(categoryID string, oldIndex, newIndex int) error {
	n, ok := t.categories[categoryID]
	if !ok {
		return apperr.Invalid(apperr.NotFound, "category %q not found", categoryID)
	}
	if !inRange(oldIndex, len(n.cat.Verses)) || !inRange(newIndex, len(n.cat.Verses)) {
		return apperr.Invalid(apperr.NotFound, "no verse to move from %d to %d", oldIndex, newIndex)
	}
	if oldIndex == newIndex {
		return nil
	}
	move(n.cat.Verses, oldIndex, newIndex)
	resequenceVerses(n.cat.Verses)
	t.touch()
	return nil
}

// siblings resolves loc once into the slice it designates.
func (t *Tree) siblings(loc Location) (*[]*models.Category, *models.Category, error) {
	if loc.kind == atRoot {
		return &t.doc.Categories, nil, nil
	}
	n, ok := t.categories[loc.id]
	if !ok || n.level != loc.Level()-1 {
		return nil, nil, apperr.Invalid(apperr.InvalidParent, "parent %s does not exist", loc)
	}
	return &n.cat.Subcategories, n.cat, nil
}

func (t *Tree) touch() { t.touchAt(t.now()) }

func (t *Tree) touchAt(now time.Time) {
	t.doc.LastModified = now
	if t.observer != nil {
		t.observer.Changed(now)
	}
}

func (t *Tree) reindex() {
	t.categories = make(map[string]categoryNode)
	t.verses = make(map[string]verseNode)
	var visit func(cats []*models.Category, parent *models.Category, level int)
	visit = func(cats []*models.Category, parent *models.Category, level int) {
		for _, c := range cats {
			t.categories[c.ID] = categoryNode{cat: c, parent: parent, level: level}
			for _, v := range c.Verses {
				t.verses[v.ID] = verseNode{verse: v, owner: c}
			}
			if level < models.Level2 {
				visit(c.Subcategories, c, level+1)
			}
		}
	}
	visit(t.doc.Categories, nil, models.LevelRoot)
}

func (t *Tree) forget(c *models.Category) {
	delete(t.categories, c.ID)
	for _, v := range c.Verses {
		delete(t.verses, v.ID)
	}
	for _, sub := range c.Subcategories {
		t.forget(sub)
	}
}
