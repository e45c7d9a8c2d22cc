package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Wire representation of the remote file. Root categories keep their
// children under subcategories_level1, level-1 categories under
// subcategories_level2; level-2 categories have no children key.
type wireDocument struct {
	Categories   []*wireCategory `json:"categories"`
	LastModified *time.Time     `json:"lastModified,omitempty"`
}

type wireCategory struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Order               int             `json:"order"`
	Verses              []*Verse         `json:"verses"`
	SubcategoriesLevel1 *[]*wireCategory `json:"subcategories_level1,omitempty"`
	SubcategoriesLevel2 *[]*wireCategory `json:"subcategories_level2,omitempty"`
}

// ErrMalformed reports a remote file that parses as JSON but cannot be
// adopted as a document tree.
var ErrMalformed = errors.New("models: malformed document")

// Encode serializes d into the persisted JSON format, indented by two spaces.
func Encode(d *Document) ([]byte, error) {
	w := wireDocument{Categories: toWire(d.Categories, LevelRoot)}
	if !d.LastModified.IsZero() {
		lm := d.LastModified.UTC()
		w.LastModified = &lm
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("models: encode document: %w", err)
	}
	return data, nil
}

// Decode parses the persisted JSON format. A missing lastModified decodes to
// the zero time. Sibling lists are sorted by order and re-sequenced when the
// stored order values are sparse or duplicated. Null entries, missing ids
// and ids used twice fail with ErrMalformed.
func Decode(data []byte) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("models: decode document: %w", err)
	}
	dec := decoder{categories: make(map[string]bool), verses: make(map[string]bool)}
	cats, err := dec.categoriesFrom(w.Categories, LevelRoot)
	if err != nil {
		return nil, err
	}
	d := &Document{Categories: cats}
	if w.LastModified != nil {
		d.LastModified = *w.LastModified
	}
	return d, nil
}

func toWire(cats []*Category, level int) []*wireCategory {
	out := make([]*wireCategory, len(cats))
	for i, c := range cats {
		verses := c.Verses
		if verses == nil {
			verses = []*Verse{}
		}
		wc := &wireCategory{ID: c.ID, Name: c.Name, Order: c.Order, Verses: verses}
		switch level {
		case LevelRoot:
			children := toWire(c.Subcategories, Level1)
			wc.SubcategoriesLevel1 = &children
		case Level1:
			children := toWire(c.Subcategories, Level2)
			wc.SubcategoriesLevel2 = &children
		}
		out[i] = wc
	}
	return out
}

// decoder tracks the ids seen so far; categories and verses are keyed
// separately, matching the tree's indexes.
type decoder struct {
	categories map[string]bool
	verses     map[string]bool
}

func (d *decoder) categoriesFrom(in []*wireCategory, level int) ([]*Category, error) {
	out := make([]*Category, 0, len(in))
	for i, wc := range in {
		if wc == nil {
			return nil, fmt.Errorf("%w: null category at level %d index %d", ErrMalformed, level, i)
		}
		if err := claim(d.categories, "category", wc.ID); err != nil {
			return nil, err
		}
		c := &Category{
			ID:            wc.ID,
			Name:          wc.Name,
			Order:         wc.Order,
			Verses:        wc.Verses,
			Subcategories: []*Category{},
		}
		if c.Verses == nil {
			c.Verses = []*Verse{}
		}
		for j, v := range c.Verses {
			if v == nil {
				return nil, fmt.Errorf("%w: null verse in category %s index %d", ErrMalformed, c.ID, j)
			}
			if err := claim(d.verses, "verse", v.ID); err != nil {
				return nil, err
			}
			if v.Images == nil {
				v.Images = []string{}
			}
		}
		var children *[]*wireCategory
		switch level {
		case LevelRoot:
			children = wc.SubcategoriesLevel1
		case Level1:
			children = wc.SubcategoriesLevel2
		}
		if children != nil {
			subs, err := d.categoriesFrom(*children, level+1)
			if err != nil {
				return nil, err
			}
			c.Subcategories = subs
		}
		normalizeVerses(c.Verses)
		out = append(out, c)
	}
	normalizeCategories(out)
	return out, nil
}

func claim(seen map[string]bool, kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s without id", ErrMalformed, kind)
	}
	if seen[id] {
		return fmt.Errorf("%w: duplicate %s id %q", ErrMalformed, kind, id)
	}
	seen[id] = true
	return nil
}

func normalizeCategories(cats []*Category) {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })
	for i, c := range cats {
		c.Order = i
	}
}

func normalizeVerses(verses []*Verse) {
	sort.SliceStable(verses, func(i, j int) bool { return verses[i].Order < verses[j].Order })
	for i, v := range verses {
		v.Order = i
	}
}
