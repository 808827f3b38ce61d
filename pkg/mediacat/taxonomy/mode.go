package taxonomy

import (
	"fmt"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
)

// Mode selects which levels of an object's category paths become
// relationships. The set of modes is closed: only All, ChildrenOnly and
// BottomOnly implement it.
type Mode interface {
	String() string
	selectSegments(paths []Path) []string
}

var (
	// All attaches every segment of every path.
	All Mode = allMode{}
	// ChildrenOnly attaches the leaf of each path that another path in the
	// same set extends.
	ChildrenOnly Mode = childrenOnlyMode{}
	// BottomOnly attaches the leaf of each path that no other path in the
	// same set extends.
	BottomOnly Mode = bottomOnlyMode{}
)

// Modes lists every mode in a stable order.
var Modes = []Mode{All, ChildrenOnly, BottomOnly}

// ParseMode maps a configuration value onto a Mode. The empty string means All.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return All, nil
	}
	for _, m := range Modes {
		if m.String() == s {
			return m, nil
		}
	}
	return nil, fmt.Errorf("taxonomy mode %q (want all, children_only or bottom_only): %w", s, internalerr.ErrInvalidConfig)
}

// Filter returns the segment names to attach for one object's paths, in
// first-appearance order without duplicates. Scope is the given set only.
func Filter(paths []Path, mode Mode) []string {
	return mode.selectSegments(dedupe(paths))
}

type allMode struct{}

func (allMode) String() string { return "all" }

func (allMode) selectSegments(paths []Path) []string {
	var out names
	for _, p := range paths {
		for _, seg := range p {
			out.add(seg)
		}
	}
	return out.list
}

type childrenOnlyMode struct{}

func (childrenOnlyMode) String() string { return "children_only" }

func (childrenOnlyMode) selectSegments(paths []Path) []string {
	var out names
	for _, p := range paths {
		if hasDescendant(p, paths) {
			out.add(p.Leaf())
		}
	}
	return out.list
}

type bottomOnlyMode struct{}

func (bottomOnlyMode) String() string { return "bottom_only" }

func (bottomOnlyMode) selectSegments(paths []Path) []string {
	var out names
	for _, p := range paths {
		if !hasDescendant(p, paths) {
			out.add(p.Leaf())
		}
	}
	return out.list
}

func hasDescendant(p Path, paths []Path) bool {
	for _, other := range paths {
		if other.Extends(p) {
			return true
		}
	}
	return false
}

func dedupe(paths []Path) []Path {
	out := make([]Path, 0, len(paths))
	for _, p := range paths {
		dup := false
		for _, seen := range out {
			if seen.Equal(p) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// names is an insertion-ordered string set.
type names struct {
	list []string
	seen map[string]struct{}
}

func (n *names) add(s string) {
	if n.seen == nil {
		n.seen = make(map[string]struct{})
	}
	if _, ok := n.seen[s]; ok {
		return
	}
	n.seen[s] = struct{}{}
	n.list = append(n.list, s)
}
