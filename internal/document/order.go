package document

import "github.com/starford/versebook/internal/models"

// move relocates s[from] to s[to], shifting the elements in between by one.
func move[T any](s []T, from, to int) {
	item := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = item
}

func resequenceCategories(cats []*models.Category) {
	for i, c := range cats {
		c.Order = i
	}
}

func resequenceVerses(verses []*models.Verse) {
	for i, v := range verses {
		v.Order = i
	}
}

func indexOfCategory(cats []*models.Category, id string) int {
	for i, c := range cats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func inRange(i, n int) bool { return i >= 0 && i < n }

// appendMissing appends the entries of add not already present in dst.
func appendMissing(dst, add []string) []string {
	if dst == nil {
		dst = []string{}
	}
	seen := make(map[string]struct{}, len(dst)+len(add))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
