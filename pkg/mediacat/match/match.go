// Package match assigns category paths to media objects by testing their
// filenames against keyword and regex rules.
package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
)

// Rule maps a filename pattern to the category paths it implies
type Rule struct {
	Key     string
	Pattern string
	Regex   bool
	Terms   []string
}

// Object is one media item to classify
type Object struct {
	ID       int64
	Filename string
	Title    string
}

// Record is the match result for one object. Paths are sorted.
type Record struct {
	ObjectID int64
	Filename string
	Title    string
	Keywords []string // keys of the rules that fired, in rule order
	Paths    []string
}

type compiledRule struct {
	Rule
	lower string
	re    *regexp.Regexp
}

// Matcher evaluates a fixed rule list
type Matcher struct {
	rules []compiledRule
	log   *zap.Logger
}

// New compiles the rules. A regex that fails to compile is logged once and
// the rule never matches; the remaining rules are unaffected.
func New(rules []Rule, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Matcher{log: log}
	for _, r := range rules {
		cr := compiledRule{Rule: r, lower: strings.ToLower(r.Pattern)}
		if r.Regex {
			re, err := compile(r.Pattern)
			if err != nil {
				log.Warn("invalid regex pattern, rule disabled",
					zap.String("rule", r.Key),
					zap.String("pattern", r.Pattern),
					zap.Error(err))
				continue
			}
			cr.re = re
		}
		m.rules = append(m.rules, cr)
	}
	return m
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidPattern, err)
	}
	return re, nil
}

// Rules returns the number of usable rules
func (m *Matcher) Rules() int { return len(m.rules) }

func (r compiledRule) matches(filename string) bool {
	if r.re != nil {
		return r.re.MatchString(filename)
	}
	return strings.Contains(strings.ToLower(filename), r.lower)
}

// MatchOne evaluates every rule against obj. ok is false when nothing matched.
func (m *Matcher) MatchOne(obj Object) (Record, bool) {
	paths := make(map[string]struct{})
	var keywords []string

	for _, r := range m.rules {
		if !r.matches(obj.Filename) {
			continue
		}
		m.log.Debug("matched keyword",
			zap.Int64("object_id", obj.ID),
			zap.String("rule", r.Key),
			zap.String("match", r.Pattern),
			zap.Strings("terms", r.Terms))
		keywords = append(keywords, r.Key)
		for _, term := range r.Terms {
			paths[term] = struct{}{}
		}
	}

	if len(paths) == 0 {
		return Record{}, false
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	return Record{
		ObjectID: obj.ID,
		Filename: obj.Filename,
		Title:    obj.Title,
		Keywords: keywords,
		Paths:    sorted,
	}, true
}

// Match classifies every object. Objects with no match are omitted.
func (m *Matcher) Match(objects []Object) map[int64]Record {
	out := make(map[int64]Record)
	for _, obj := range objects {
		m.log.Debug("processing", zap.Int64("object_id", obj.ID), zap.String("filename", obj.Filename))
		rec, ok := m.MatchOne(obj)
		if !ok {
			m.log.Debug("no matches", zap.String("filename", obj.Filename))
			continue
		}
		out[obj.ID] = rec
	}
	return out
}
