// Package taxonomy parses ">"-delimited category paths, resolves them into
// parent-linked terms and decides which levels get attached to an object.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
)

// Name is the single taxonomy every term and relationship belongs to.
const Name = "media_category"

// Separator splits a category path into segments.
const Separator = ">"

// Path is a parsed category path, root first.
type Path []string

// ParsePath splits raw on ">" and trims each segment. Empty segments are
// dropped; a path with no segments left is rejected.
func ParsePath(raw string) (Path, error) {
	parts := strings.Split(raw, Separator)
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p = append(p, part)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("category path %q: %w", raw, internalerr.ErrInvalidInput)
	}
	return p, nil
}

// ParsePaths parses every raw path, returning the first error encountered.
func ParsePaths(raw []string) ([]Path, error) {
	paths := make([]Path, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePath(r)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Leaf returns the deepest segment.
func (p Path) Leaf() string {
	return p[len(p)-1]
}

// String renders the canonical "A > B > C" form.
func (p Path) String() string {
	return strings.Join(p, " "+Separator+" ")
}

// Extends reports whether p is a strict descendant of ancestor.
func (p Path) Extends(ancestor Path) bool {
	if len(p) <= len(ancestor) {
		return false
	}
	for i := range ancestor {
		if p[i] != ancestor[i] {
			return false
		}
	}
	return true
}

// Equal compares segment by segment, case-sensitively.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
