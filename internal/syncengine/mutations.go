package syncengine

import (
	"github.com/starford/versebook/internal/document"
	"github.com/starford/versebook/internal/models"
)

// The document mutations below are applied synchronously under the engine
// lock. They are accepted in every state; while Loading they do not mark the
// document dirty.

// AddCategory appends a category at loc.
func (e *Engine) AddCategory(loc document.Location, name string) (*models.Category, error) {
	var out *models.Category
	err := e.mutate("add_category", func(t *document.Tree) error {
		c, err := t.AddCategory(loc, name)
		if err == nil {
			out = cloneCategory(c)
		}
		return err
	})
	return out, err
}

// RenameCategory renames the category with the given id.
func (e *Engine) RenameCategory(id, name string) error {
	return e.mutate("rename_category", func(t *document.Tree) error {
		return t.RenameCategory(id, name)
	})
}

// DeleteCategory removes a category and its whole subtree.
func (e *Engine) DeleteCategory(id string) error {
	return e.mutate("delete_category", func(t *document.Tree) error {
		return t.DeleteCategory(id)
	})
}

// ReorderCategories moves one sibling under loc from oldIndex to newIndex.
func (e *Engine) ReorderCategories(loc document.Location, oldIndex, newIndex int) error {
	return e.mutate("reorder_categories", func(t *document.Tree) error {
		return t.ReorderCategories(loc, oldIndex, newIndex)
	})
}

// AddVerse appends a verse to a category.
func (e *Engine) AddVerse(categoryID, reference, text, notes string, images []string) (*models.Verse, error) {
	var out *models.Verse
	err := e.mutate("add_verse", func(t *document.Tree) error {
		v, err := t.AddVerse(categoryID, reference, text, notes, images)
		if err == nil {
			out = cloneVerse(v)
		}
		return err
	})
	return out, err
}

// UpdateVerse merges fields into a verse.
func (e *Engine) UpdateVerse(id string, fields document.VerseUpdate) (*models.Verse, error) {
	var out *models.Verse
	err := e.mutate("update_verse", func(t *document.Tree) error {
		v, err := t.UpdateVerse(id, fields)
		if err == nil {
			out = cloneVerse(v)
		}
		return err
	})
	return out, err
}

// DeleteVerse removes a verse from a category.
func (e *Engine) DeleteVerse(categoryID, id string) error {
	return e.mutate("delete_verse", func(t *document.Tree) error {
		return t.DeleteVerse(categoryID, id)
	})
}

// ReorderVerses moves one verse within a category.
func (e *Engine) ReorderVerses(categoryID string, oldIndex, newIndex int) error {
	return e.mutate("reorder_verses", func(t *document.Tree) error {
		return t.ReorderVerses(categoryID, oldIndex, newIndex)
	})
}

// Category returns a copy of a category, its level and its parent id.
func (e *Engine) Category(id string) (*models.Category, int, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, level, ok := e.tree.Category(id)
	if !ok {
		return nil, 0, "", false
	}
	parentID := ""
	if p, ok := e.tree.ParentOf(id); ok && p != nil {
		parentID = p.ID
	}
	return cloneCategory(c), level, parentID, true
}

// Verse returns a copy of a verse and the id of the category owning it.
func (e *Engine) Verse(id string) (*models.Verse, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, owner, ok := e.tree.Verse(id)
	if !ok {
		return nil, "", false
	}
	return cloneVerse(v), owner.ID, true
}

func (e *Engine) mutate(op string, fn func(t *document.Tree) error) error {
	e.mu.Lock()
	err := fn(e.tree)
	status := e.statusLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventMutated, Op: op, Status: status})
	return nil
}

func cloneCategory(c *models.Category) *models.Category {
	d := &models.Document{Categories: []*models.Category{c}}
	return d.Clone().Categories[0]
}

func cloneVerse(v *models.Verse) *models.Verse {
	cp := *v
	cp.Images = append([]string{}, v.Images...)
	return &cp
}
