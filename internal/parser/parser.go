// Package parser loosely parses free-text scripture references such as
// "Jean 3:16", "1 Cor 13.4-7" or "Psaumes 23" and builds external passage
// links for them.
package parser

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed books.yaml
var booksYAML []byte

// DefaultLinkBase is the passage reader used by DeepLink.
const DefaultLinkBase = "https://www.bible.com/bible"

var refRe = regexp.MustCompile(`^\s*([1-3]?\s*[\p{L}][\p{L}\s.]*?)\.?\s*(\d{1,3})(?:\s*[:.,v]\s*(\d{1,3})(?:\s*[-–]\s*(\d{1,3}))?)?\s*$`)

var foldAccents = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

// Book is one entry of the alias table.
type Book struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Reference is a parsed passage. Verse and EndVerse are zero when absent.
type Reference struct {
	Book     string `json:"book"`
	Code     string `json:"code"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse,omitempty"`
	EndVerse int    `json:"end_verse,omitempty"`
}

// String renders the canonical English form, e.g. "John 3:16-18".
func (r Reference) String() string {
	s := fmt.Sprintf("%s %d", r.Book, r.Chapter)
	if r.Verse > 0 {
		s += fmt.Sprintf(":%d", r.Verse)
		if r.EndVerse > r.Verse {
			s += fmt.Sprintf("-%d", r.EndVerse)
		}
	}
	return s
}

var (
	loadOnce sync.Once
	aliases  map[string]Book
	loadErr  error
)

func table() (map[string]Book, error) {
	loadOnce.Do(func() {
		var doc struct {
			Books []Book `yaml:"books"`
		}
		if loadErr = yaml.Unmarshal(booksYAML, &doc); loadErr != nil {
			return
		}
		aliases = make(map[string]Book, len(doc.Books)*5)
		for _, b := range doc.Books {
			aliases[normalize(b.Name)] = b
			for _, a := range b.Aliases {
				aliases[normalize(a)] = b
			}
		}
	})
	return aliases, loadErr
}

func normalize(s string) string {
	s = foldAccents.Replace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, ".", "")
}

// Parse reads ref. ok is false when the text is not a recognizable
// reference; that is not an error, such verses simply have no link.
func Parse(ref string) (Reference, bool) {
	m := refRe.FindStringSubmatch(ref)
	if m == nil {
		return Reference{}, false
	}
	books, err := table()
	if err != nil {
		return Reference{}, false
	}
	book, found := books[normalize(m[1])]
	if !found {
		return Reference{}, false
	}

	r := Reference{Book: book.Name, Code: book.Code}
	r.Chapter, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		r.Verse, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		r.EndVerse, _ = strconv.Atoi(m[4])
		if r.EndVerse < r.Verse {
			r.EndVerse = 0
		}
	}
	if r.Chapter == 0 {
		return Reference{}, false
	}
	return r, true
}

// Linker builds passage URLs for one translation.
type Linker struct {
	base    string
	version string
}

// NewLinker returns a Linker for the given reader base URL and translation
// id. An empty base uses DefaultLinkBase.
func NewLinker(base, version string) *Linker {
	if base == "" {
		base = DefaultLinkBase
	}
	return &Linker{base: strings.TrimSuffix(base, "/"), version: version}
}

// DeepLink returns the passage URL for ref, or "" when ref does not parse.
func (l *Linker) DeepLink(ref string) string {
	r, ok := Parse(ref)
	if !ok {
		return ""
	}
	passage := fmt.Sprintf("%s.%d", r.Code, r.Chapter)
	if r.Verse > 0 {
		passage += fmt.Sprintf(".%d", r.Verse)
		if r.EndVerse > r.Verse {
			passage += fmt.Sprintf("-%d", r.EndVerse)
		}
	}
	if l.version == "" {
		return l.base + "/" + passage
	}
	return l.base + "/" + url.PathEscape(l.version) + "/" + passage
}
