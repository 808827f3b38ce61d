package store

import (
	"strings"

	"golang.org/x/text/cases"
)

// TermIndex maps term names and slugs to term ids. Keys are kept verbatim
// and case-folded, so a lookup tries the exact spelling first and then any
// spelling that folds to the same key. A later Put for a key wins.
type TermIndex struct {
	exact  map[string]int64
	folded map[string]int64
	folder cases.Caser
	terms  int
}

// NewTermIndex returns an empty index
func NewTermIndex() *TermIndex {
	return &TermIndex{
		exact:  make(map[string]int64),
		folded: make(map[string]int64),
		folder: cases.Fold(),
	}
}

// Put registers a term under its name and slug
func (x *TermIndex) Put(t Term) {
	x.terms++
	for _, key := range []string{t.Name, t.Slug} {
		if key == "" {
			continue
		}
		x.exact[key] = t.ID
		x.folded[x.fold(key)] = t.ID
	}
}

// Lookup finds a term id by name or slug
func (x *TermIndex) Lookup(name string) (int64, bool) {
	if id, ok := x.exact[name]; ok {
		return id, true
	}
	id, ok := x.folded[x.fold(name)]
	return id, ok
}

// Len returns the number of terms registered
func (x *TermIndex) Len() int { return x.terms }

func (x *TermIndex) fold(s string) string {
	return x.folder.String(strings.TrimSpace(s))
}

// Slug derives a term slug from its name: lower case, spaces to hyphens,
// "&" to "and".
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, "&", "and")
}
