// Package models defines the verse index document: a three-level category
// tree of annotated scripture references plus its modification timestamp.
package models

import (
	"encoding/json"
	"time"
)

// Category levels. A document never nests deeper than Level2.
const (
	LevelRoot = 0
	Level1    = 1
	Level2    = 2
)

// Document is the root aggregate persisted as a single remote file.
type Document struct {
	Categories   []*Category
	LastModified time.Time
}

// Category is a named tree node holding ordered verses and child categories.
type Category struct {
	ID            string
	Name          string
	Order         int
	Verses        []*Verse
	Subcategories []*Category
}

// Verse is an annotated scripture reference.
type Verse struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Text      string    `json:"text"`
	Notes     string    `json:"notes"`
	Images    []string  `json:"images"`
	Order     int       `json:"order"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// MarshalJSON encodes a missing image list as [] rather than null.
func (v Verse) MarshalJSON() ([]byte, error) {
	type plain Verse
	p := plain(v)
	if p.Images == nil {
		p.Images = []string{}
	}
	return json.Marshal(p)
}

// New returns an empty document stamped at now.
func New(now time.Time) *Document {
	return &Document{Categories: []*Category{}, LastModified: now}
}

// Walk visits every category depth-first in sibling order. path holds the
// names of the ancestors followed by the category itself.
func (d *Document) Walk(fn func(c *Category, level int, path []string)) {
	var visit func(cats []*Category, level int, prefix []string)
	visit = func(cats []*Category, level int, prefix []string) {
		for _, c := range cats {
			path := append(append([]string(nil), prefix...), c.Name)
			fn(c, level, path)
			visit(c.Subcategories, level+1, path)
		}
	}
	visit(d.Categories, LevelRoot, nil)
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Categories:   cloneCategories(d.Categories),
		LastModified: d.LastModified,
	}
}

func cloneCategories(in []*Category) []*Category {
	out := make([]*Category, len(in))
	for i, c := range in {
		out[i] = &Category{
			ID:            c.ID,
			Name:          c.Name,
			Order:         c.Order,
			Verses:        cloneVerses(c.Verses),
			Subcategories: cloneCategories(c.Subcategories),
		}
	}
	return out
}

func cloneVerses(in []*Verse) []*Verse {
	out := make([]*Verse, len(in))
	for i, v := range in {
		cp := *v
		cp.Images = append([]string(nil), v.Images...)
		out[i] = &cp
	}
	return out
}

// Summary is the condensed view of a document shown when the user has to
// choose between two versions.
type Summary struct {
	Categories      int       `json:"categories"`
	TotalCategories int       `json:"total_categories"`
	Verses          int       `json:"verses"`
	LastModified    time.Time `json:"last_modified"`
}

// Summarize counts the categories and verses of d.
func Summarize(d *Document) Summary {
	if d == nil {
		return Summary{}
	}
	s := Summary{Categories: len(d.Categories), LastModified: d.LastModified}
	d.Walk(func(c *Category, _ int, _ []string) {
		s.TotalCategories++
		s.Verses += len(c.Verses)
	})
	return s
}
