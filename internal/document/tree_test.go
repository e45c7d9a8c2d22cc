package document

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/models"
)

type recorder struct{ calls []time.Time }

func (r *recorder) Changed(at time.Time) { r.calls = append(r.calls, at) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testTree(t *testing.T) (*Tree, *recorder, *fakeClock) {
	t.Helper()
	rec := &recorder{}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	tree := New(nil,
		WithClock(clock.Now),
		WithObserver(rec),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return tree, rec, clock
}

func mustAdd(t *testing.T, tree *Tree, loc Location, name string) *models.Category {
	t.Helper()
	c, err := tree.AddCategory(loc, name)
	if err != nil {
		t.Fatalf("AddCategory(%s, %q): %v", loc, name, err)
	}
	return c
}

func ids(cats []*models.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.ID
	}
	return out
}

func assertDense(t *testing.T, cats []*models.Category) {
	t.Helper()
	for i, c := range cats {
		if c.Order != i {
			t.Fatalf("category %s order = %d, want %d (ids %v)", c.ID, c.Order, i, ids(cats))
		}
	}
}

func TestAddCategoryAtEveryLevel(t *testing.T) {
	tree, rec, _ := testTree(t)
	root := mustAdd(t, tree, Root(), "  Salut ")
	sub := mustAdd(t, tree, UnderCategory(root.ID), "Grâce")
	leaf := mustAdd(t, tree, UnderSubcategory(sub.ID), "Foi")

	if root.Name != "Salut" {
		t.Errorf("name not trimmed: %q", root.Name)
	}
	if _, level, ok := tree.Category(leaf.ID); !ok || level != models.Level2 {
		t.Errorf("leaf level = %d, ok=%v", level, ok)
	}
	if parent, ok := tree.ParentOf(leaf.ID); !ok || parent != sub {
		t.Errorf("leaf parent = %+v", parent)
	}
	if len(rec.calls) != 3 {
		t.Errorf("observer calls = %d, want 3", len(rec.calls))
	}
	if !tree.Document().LastModified.Equal(rec.calls[2]) {
		t.Error("lastModified not bumped to the last mutation time")
	}
}

func TestAddCategoryRejectsInvalidParent(t *testing.T) {
	tree, rec, _ := testTree(t)
	root := mustAdd(t, tree, Root(), "A")
	sub := mustAdd(t, tree, UnderCategory(root.ID), "B")
	leaf := mustAdd(t, tree, UnderSubcategory(sub.ID), "C")
	before := len(rec.calls)

	cases := []Location{
		UnderCategory("missing"),
		UnderCategory(sub.ID),     // level-1 id used as root parent
		UnderSubcategory(root.ID), // root id used as level-1 parent
		UnderSubcategory(leaf.ID), // would create a fourth level
	}
	for _, loc := range cases {
		_, err := tree.AddCategory(loc, "X")
		if apperr.KindOf(err) != apperr.InvalidParent {
			t.Errorf("AddCategory(%s) error = %v, want InvalidParent", loc, err)
		}
	}
	if len(rec.calls) != before {
		t.Error("failed mutations must not notify the observer")
	}
}

func TestAddCategoryEmptyName(t *testing.T) {
	tree, _, _ := testTree(t)
	_, err := tree.AddCategory(Root(), "   ")
	if apperr.KindOf(err) != apperr.EmptyName {
		t.Fatalf("error = %v, want EmptyName", err)
	}
	if len(tree.Document().Categories) != 0 {
		t.Error("category created despite validation error")
	}
}

func TestRenameCategory(t *testing.T) {
	tree, _, _ := testTree(t)
	c := mustAdd(t, tree, Root(), "Old")
	if err := tree.RenameCategory(c.ID, "New"); err != nil {
		t.Fatalf("RenameCategory: %v", err)
	}
	if c.Name != "New" {
		t.Errorf("name = %q", c.Name)
	}
	if err := tree.RenameCategory(c.ID, ""); apperr.KindOf(err) != apperr.EmptyName {
		t.Errorf("blank rename error = %v", err)
	}
	if err := tree.RenameCategory("nope", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing rename error = %v", err)
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	tree, _, _ := testTree(t)
	keep := mustAdd(t, tree, Root(), "Keep")
	x := mustAdd(t, tree, Root(), "X")
	sub := mustAdd(t, tree, UnderCategory(x.ID), "X.1")
	leaf := mustAdd(t, tree, UnderSubcategory(sub.ID), "X.1.1")
	v1, _ := tree.AddVerse(x.ID, "Ps 23", "", "", nil)
	v2, _ := tree.AddVerse(leaf.ID, "Jn 1:1", "", "", nil)
	kv, _ := tree.AddVerse(keep.ID, "Gen 1:1", "", "", nil)

	if err := tree.DeleteCategory(x.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	for _, id := range []string{x.ID, sub.ID, leaf.ID} {
		if _, _, ok := tree.Category(id); ok {
			t.Errorf("category %s still resolvable", id)
		}
	}
	for _, id := range []string{v1.ID, v2.ID} {
		if _, _, ok := tree.Verse(id); ok {
			t.Errorf("verse %s still resolvable", id)
		}
	}
	if _, _, ok := tree.Verse(kv.ID); !ok {
		t.Error("unrelated verse lost")
	}
	tree.Document().Walk(func(_ *models.Category, _ int, path []string) {
		if path[0] == "X" {
			t.Errorf("node under deleted category remains: %v", path)
		}
	})
	assertDense(t, tree.Document().Categories)

	if err := tree.DeleteCategory(x.ID); apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("second delete error = %v, want NotFound", err)
	}
}

func TestDeleteNestedCategoryResequencesSiblings(t *testing.T) {
	tree, _, _ := testTree(t)
	root := mustAdd(t, tree, Root(), "R")
	a := mustAdd(t, tree, UnderCategory(root.ID), "a")
	mustAdd(t, tree, UnderCategory(root.ID), "b")
	mustAdd(t, tree, UnderCategory(root.ID), "c")
	if err := tree.DeleteCategory(a.ID); err != nil {
		t.Fatal(err)
	}
	assertDense(t, root.Subcategories)
	if len(root.Subcategories) != 2 || root.Subcategories[0].Name != "b" {
		t.Errorf("subcategories = %v", ids(root.Subcategories))
	}
}

func TestReorderIsMoveNotSwap(t *testing.T) {
	tree, _, _ := testTree(t)
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		mustAdd(t, tree, Root(), n)
	}
	if err := tree.ReorderCategories(Root(), 0, 3); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range tree.Document().Categories {
		names = append(names, c.Name)
	}
	if want := []string{"b", "c", "d", "a", "e"}; !reflect.DeepEqual(names, want) {
		t.Errorf("after move 0→3: %v, want %v", names, want)
	}
	assertDense(t, tree.Document().Categories)
}

func TestReorderInverseLaw(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				tree, _, _ := testTree(t)
				for k := 0; k < n; k++ {
					mustAdd(t, tree, Root(), fmt.Sprintf("c%d", k))
				}
				original := ids(tree.Document().Categories)
				if err := tree.ReorderCategories(Root(), i, j); err != nil {
					t.Fatal(err)
				}
				if err := tree.ReorderCategories(Root(), j, i); err != nil {
					t.Fatal(err)
				}
				if got := ids(tree.Document().Categories); !reflect.DeepEqual(got, original) {
					t.Fatalf("n=%d move %d↔%d: %v, want %v", n, i, j, got, original)
				}
				assertDense(t, tree.Document().Categories)
			}
		}
	}
}

func TestReorderSameIndexIsNoop(t *testing.T) {
	tree, rec, _ := testTree(t)
	mustAdd(t, tree, Root(), "a")
	mustAdd(t, tree, Root(), "b")
	before := len(rec.calls)
	if err := tree.ReorderCategories(Root(), 1, 1); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != before {
		t.Error("no-op reorder should not mark the document changed")
	}
}

func TestReorderOutOfRange(t *testing.T) {
	tree, _, _ := testTree(t)
	mustAdd(t, tree, Root(), "a")
	if err := tree.ReorderCategories(Root(), 0, 5); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v", err)
	}
	if err := tree.ReorderCategories(UnderCategory("missing"), 0, 0); apperr.KindOf(err) != apperr.InvalidParent {
		t.Errorf("error = %v", err)
	}
}

// Random add/delete/reorder sequences on one sibling list keep orders dense
// and match a reference permutation.
func TestOrderInvariantUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree, _, _ := testTree(t)
	root := mustAdd(t, tree, Root(), "root")
	loc := UnderCategory(root.ID)
	var want []string

	for step := 0; step < 500; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(want) == 0:
			c := mustAdd(t, tree, loc, fmt.Sprintf("n%d", step))
			want = append(want, c.ID)
		case op == 1:
			i := rng.Intn(len(want))
			if err := tree.DeleteCategory(want[i]); err != nil {
				t.Fatal(err)
			}
			want = append(want[:i], want[i+1:]...)
		default:
			i, j := rng.Intn(len(want)), rng.Intn(len(want))
			if err := tree.ReorderCategories(loc, i, j); err != nil {
				t.Fatal(err)
			}
			id := want[i]
			want = append(want[:i], want[i+1:]...)
			want = append(want[:j], append([]string{id}, want[j:]...)...)
		}
		got := root.Subcategories
		assertDense(t, got)
		if !reflect.DeepEqual(ids(got), want) && !(len(got) == 0 && len(want) == 0) {
			t.Fatalf("step %d: ids %v, want %v", step, ids(got), want)
		}
	}
}

func TestAddVerse(t *testing.T) {
	tree, _, clock := testTree(t)
	c := mustAdd(t, tree, Root(), "A")
	v, err := tree.AddVerse(c.ID, " Jean 3:16 ", "text", "notes", []string{"u1", "u1", ""})
	if err != nil {
		t.Fatalf("AddVerse: %v", err)
	}
	if v.Reference != "Jean 3:16" {
		t.Errorf("reference = %q", v.Reference)
	}
	if !v.Created.Equal(v.Modified) || !v.Created.Equal(clock.t) {
		t.Errorf("created/modified = %v/%v, want %v", v.Created, v.Modified, clock.t)
	}
	if !reflect.DeepEqual(v.Images, []string{"u1"}) {
		t.Errorf("images = %v", v.Images)
	}
	if _, owner, ok := tree.Verse(v.ID); !ok || owner != c {
		t.Error("verse not indexed under its category")
	}

	if _, err := tree.AddVerse(c.ID, "  ", "", "", nil); apperr.KindOf(err) != apperr.EmptyReference {
		t.Errorf("blank reference error = %v", err)
	}
	if _, err := tree.AddVerse("missing", "Ps 1", "", "", nil); apperr.KindOf(err) != apperr.InvalidParent {
		t.Errorf("missing category error = %v", err)
	}
	if len(c.Verses) != 1 {
		t.Errorf("verses = %d, want 1", len(c.Verses))
	}
}

func TestUpdateVerseKeepsImages(t *testing.T) {
	tree, _, _ := testTree(t)
	c := mustAdd(t, tree, Root(), "A")
	v, _ := tree.AddVerse(c.ID, "Ps 23", "", "", []string{"A", "B"})
	created := v.Created

	notes := "still my shepherd"
	got, err := tree.UpdateVerse(v.ID, VerseUpdate{Notes: &notes})
	if err != nil {
		t.Fatalf("UpdateVerse: %v", err)
	}
	if !reflect.DeepEqual(got.Images, []string{"A", "B"}) {
		t.Errorf("images = %v, want [A B]", got.Images)
	}
	if got.Notes != notes || got.Reference != "Ps 23" {
		t.Errorf("fields = %+v", got)
	}

	got, _ = tree.UpdateVerse(v.ID, VerseUpdate{Images: []string{"B", "C"}})
	if !reflect.DeepEqual(got.Images, []string{"A", "B", "C"}) {
		t.Errorf("images = %v, want [A B C]", got.Images)
	}
	if !got.Created.Equal(created) || !got.Modified.After(created) {
		t.Errorf("created %v modified %v", got.Created, got.Modified)
	}
}

func TestUpdateVerseValidation(t *testing.T) {
	tree, rec, _ := testTree(t)
	c := mustAdd(t, tree, Root(), "A")
	v, _ := tree.AddVerse(c.ID, "Ps 23", "t", "", nil)
	before := len(rec.calls)

	blank := " "
	text := "changed"
	if _, err := tree.UpdateVerse(v.ID, VerseUpdate{Reference: &blank, Text: &text}); apperr.KindOf(err) != apperr.EmptyReference {
		t.Fatalf("error = %v", err)
	}
	if v.Text != "t" || len(rec.calls) != before {
		t.Error("rejected update partially applied")
	}
	if _, err := tree.UpdateVerse("missing", VerseUpdate{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v", err)
	}
}

func TestDeleteAndReorderVerses(t *testing.T) {
	tree, _, _ := testTree(t)
	c := mustAdd(t, tree, Root(), "A")
	other := mustAdd(t, tree, Root(), "B")
	var vs []*models.Verse
	for _, ref := range []string{"r0", "r1", "r2", "r3"} {
		v, _ := tree.AddVerse(c.ID, ref, "", "", nil)
		vs = append(vs, v)
	}

	if err := tree.DeleteVerse(other.ID, vs[0].ID); apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("delete from wrong category error = %v", err)
	}
	if err := tree.DeleteVerse(c.ID, vs[1].ID); err != nil {
		t.Fatal(err)
	}
	if err := tree.ReorderVerses(c.ID, 2, 0); err != nil {
		t.Fatal(err)
	}
	var refs []string
	for i, v := range c.Verses {
		if v.Order != i {
			t.Errorf("verse %s order %d, want %d", v.Reference, v.Order, i)
		}
		refs = append(refs, v.Reference)
	}
	if want := []string{"r3", "r0", "r2"}; !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %v, want %v", refs, want)
	}
	if err := tree.ReorderVerses(c.ID, 0, 9); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("out of range error = %v", err)
	}
	if err := tree.DeleteVerse(c.ID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing verse error = %v", err)
	}
}

func TestReplaceRebuildsIndex(t *testing.T) {
	tree, rec, _ := testTree(t)
	mustAdd(t, tree, Root(), "old")
	before := len(rec.calls)

	doc, err := models.Decode([]byte(`{"categories":[{"id":"r","name":"R","order":0,"verses":[{"id":"v","reference":"Ps 1","order":0}],
		"subcategories_level1":[{"id":"s","name":"S","order":0,"verses":[]}]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	tree.Replace(doc)
	if len(rec.calls) != before {
		t.Error("Replace must not notify the observer")
	}
	if _, level, ok := tree.Category("s"); !ok || level != 1 {
		t.Errorf("s level=%d ok=%v", level, ok)
	}
	if _, owner, ok := tree.Verse("v"); !ok || owner.ID != "r" {
		t.Error("verse index not rebuilt")
	}
	if _, err := tree.AddCategory(UnderSubcategory("s"), "leaf"); err != nil {
		t.Errorf("AddCategory under adopted node: %v", err)
	}
}

func TestLocationFor(t *testing.T) {
	if LocationFor("", 0) != Root() {
		t.Error("empty parent should be root")
	}
	if LocationFor("a", 0) != UnderCategory("a") {
		t.Error("level-0 parent should be UnderCategory")
	}
	if LocationFor("b", 1) != UnderSubcategory("b") {
		t.Error("level-1 parent should be UnderSubcategory")
	}
	if UnderSubcategory("b").ParentID() != "b" || UnderSubcategory("b").Level() != 2 {
		t.Error("accessors mismatch")
	}
}
