package taxonomy

import (
	"context"
	"fmt"
)

// TermSource is what EnsurePath needs from a term store: a lookup that
// reflects every term created so far in the run, and a way to create one.
type TermSource interface {
	// LookupTerm finds a term by exact name, then by case-folded name.
	LookupTerm(name string) (int64, bool)
	// CreateTerm inserts name under parent (0 for a root term) and must make
	// it visible to LookupTerm before returning.
	CreateTerm(ctx context.Context, name string, parent int64) (int64, error)
}

// EnsurePath walks p from the root, reusing any existing term with a
// matching name and creating the missing ones under the previous segment.
// It returns the id of the deepest segment.
//
// An existing term is reused wherever it lives in the hierarchy, so a name
// that already exists under another branch is not created again.
func EnsurePath(ctx context.Context, src TermSource, p Path) (int64, error) {
	var parent int64
	for _, seg := range p {
		if id, ok := src.LookupTerm(seg); ok {
			parent = id
			continue
		}
		id, err := src.CreateTerm(ctx, seg, parent)
		if err != nil {
			return 0, fmt.Errorf("create term %q of %q: %w", seg, p.String(), err)
		}
		parent = id
	}
	return parent, nil
}
