package document

import "fmt"

type locationKind int

const (
	atRoot locationKind = iota
	underCategory
	underSubcategory
)

// Location identifies a sibling list of categories: the top level, the
// children of a root category, or the children of a level-1 category.
type Location struct {
	kind locationKind
	id   string
}

// Root is the list of top-level categories.
func Root() Location { return Location{kind: atRoot} }

// UnderCategory is the list of level-1 categories below root category id.
func UnderCategory(id string) Location { return Location{kind: underCategory, id: id} }

// UnderSubcategory is the list of level-2 categories below level-1 category id.
func UnderSubcategory(id string) Location { return Location{kind: underSubcategory, id: id} }

// ParentID returns the id of the owning category, or "" for Root.
func (l Location) ParentID() string { return l.id }

// Level returns the level of the categories stored at l.
func (l Location) Level() int { return int(l.kind) }

func (l Location) String() string {
	switch l.kind {
	case underCategory:
		return fmt.Sprintf("category(%s)", l.id)
	case underSubcategory:
		return fmt.Sprintf("subcategory(%s)", l.id)
	default:
		return "root"
	}
}

// LocationFor builds the Location of the children of a category at parentLevel.
// An empty parentID yields Root.
func LocationFor(parentID string, parentLevel int) Location {
	switch {
	case parentID == "":
		return Root()
	case parentLevel == 0:
		return UnderCategory(parentID)
	default:
		return UnderSubcategory(parentID)
	}
}
