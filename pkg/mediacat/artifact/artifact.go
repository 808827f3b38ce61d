// Package artifact reads and writes the matches file handed from the
// preprocess stage to the apply stage.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
	"github.com/cognicore/mediacat/pkg/mediacat/match"
)

// Entry is the on-disk form of one match record. Fields are declared in
// key order so the encoded object is sorted.
type Entry struct {
	Filename string   `json:"filename"`
	Keywords []string `json:"keywords,omitempty"`
	Terms    []string `json:"terms"`
	Title    string   `json:"title"`
}

// Matches is the decoded file, keyed by object id
type Matches map[int64]match.Record

// IDs returns the object ids in ascending order
func (m Matches) IDs() []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Write stores matches as indented JSON with sorted keys, creating the
// parent directory if needed. An empty set is still written.
func Write(path string, matches Matches) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}

	doc := make(map[string]Entry, len(matches))
	for id, rec := range matches {
		terms := rec.Paths
		if terms == nil {
			terms = []string{}
		}
		doc[strconv.FormatInt(id, 10)] = Entry{
			Filename: rec.Filename,
			Keywords: rec.Keywords,
			Terms:    terms,
			Title:    rec.Title,
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Read loads a matches file. A missing file yields ErrMatchesMissing.
func Read(path string) (Matches, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w (run mediacat-preprocess first to generate matches)", path, internalerr.ErrMatchesMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var doc map[string]Entry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w: %w", path, internalerr.ErrInvalidInput, err)
	}

	out := make(Matches, len(doc))
	for key, e := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: object id %q: %w", path, key, internalerr.ErrInvalidInput)
		}
		out[id] = match.Record{
			ObjectID: id,
			Filename: e.Filename,
			Title:    e.Title,
			Keywords: e.Keywords,
			Paths:    e.Terms,
		}
	}
	return out, nil
}
