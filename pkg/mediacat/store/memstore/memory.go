// Package memstore is an in-memory store.Backend for tests. Transactions
// work on a copy of the tables and replace them on Commit, so Rollback
// leaves the store exactly as it was.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
)

// ErrInjected is returned by writes configured to fail.
var ErrInjected = errors.New("memstore: injected failure")

// Store is an in-memory implementation of store.Backend.
type Store struct {
	mu       sync.Mutex
	taxonomy string
	data     tables
	inTx     bool

	// Writes counts every successful write call, committed or not.
	Writes int
	// FailRelationshipBatch makes the n-th InsertRelationships call
	// (1-based, counted per transaction) fail. Zero disables it.
	FailRelationshipBatch int
}

type tables struct {
	nextTermID int64
	nextTTID   int64
	terms      map[int64]store.Term
	entries    map[int64]store.TermTaxonomy
	rels       map[store.Relationship]struct{}
}

// New creates an empty store for the given taxonomy.
func New(taxonomy string) *Store {
	return &Store{
		taxonomy: taxonomy,
		data: tables{
			nextTermID: 1,
			nextTTID:   1,
			terms:      make(map[int64]store.Term),
			entries:    make(map[int64]store.TermTaxonomy),
			rels:       make(map[store.Relationship]struct{}),
		},
	}
}

// Close implements store.Backend.
func (s *Store) Close() error { return nil }

// Begin starts a transaction. Only one may be open at a time.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTx {
		return nil, fmt.Errorf("memstore: transaction already open: %w", internalerr.ErrStoreUnavailable)
	}
	s.inTx = true
	return &tx{s: s, data: s.data.clone()}, nil
}

// SeedTerm inserts a committed term outside any transaction. taxonomy may
// differ from the store's to model terms owned by other taxonomies.
func (s *Store) SeedTerm(name, slug, taxonomy string, parent int64) (termID, ttID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.insertTerm(store.Term{Name: name, Slug: slug}, taxonomy, parent)
}

// SeedRelationship inserts a committed relationship and bumps the count.
func (s *Store) SeedRelationship(objectID, ttID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.rels[store.Relationship{ObjectID: objectID, TermTaxonomyID: ttID}] = struct{}{}
	e := s.data.entries[ttID]
	e.Count++
	s.data.entries[ttID] = e
}

// Terms returns committed terms ordered by id.
func (s *Store) Terms() []store.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Term, 0, len(s.data.terms))
	for _, t := range s.data.terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entry returns the committed taxonomy entry for a term id.
func (s *Store) Entry(termID int64) (store.TermTaxonomy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.data.entries {
		if e.TermID == termID {
			return e, true
		}
	}
	return store.TermTaxonomy{}, false
}

// Relationships returns committed relationships ordered by object then entry.
func (s *Store) Relationships() []store.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Relationship, 0, len(s.data.rels))
	for r := range s.data.rels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObjectID != out[j].ObjectID {
			return out[i].ObjectID < out[j].ObjectID
		}
		return out[i].TermTaxonomyID < out[j].TermTaxonomyID
	})
	return out
}

// CountsConsistent reports whether every entry's count equals the number of
// relationships referencing it.
func (s *Store) CountsConsistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make(map[int64]int64)
	for r := range s.data.rels {
		refs[r.TermTaxonomyID]++
	}
	for id, e := range s.data.entries {
		if e.Count != refs[id] {
			return false
		}
	}
	return true
}

func (d tables) clone() tables {
	c := tables{
		nextTermID: d.nextTermID,
		nextTTID:   d.nextTTID,
		terms:      make(map[int64]store.Term, len(d.terms)),
		entries:    make(map[int64]store.TermTaxonomy, len(d.entries)),
		rels:       make(map[store.Relationship]struct{}, len(d.rels)),
	}
	for k, v := range d.terms {
		c.terms[k] = v
	}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	for k := range d.rels {
		c.rels[k] = struct{}{}
	}
	return c
}

func (d *tables) insertTerm(t store.Term, taxonomy string, parent int64) (int64, int64) {
	t.ID = d.nextTermID
	d.nextTermID++
	d.terms[t.ID] = t

	ttID := d.nextTTID
	d.nextTTID++
	d.entries[ttID] = store.TermTaxonomy{ID: ttID, TermID: t.ID, Taxonomy: taxonomy, Parent: parent}
	return t.ID, ttID
}

type tx struct {
	s       *Store
	data    tables
	batches int
	done    bool
}

func (t *tx) check() error {
	if t.done {
		return fmt.Errorf("memstore: transaction finished: %w", internalerr.ErrStoreUnavailable)
	}
	return nil
}

func (t *tx) LoadTerms(ctx context.Context) ([]store.Term, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	out := make([]store.Term, 0, len(t.data.terms))
	for _, term := range t.data.terms {
		out = append(out, term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) LoadTaxonomy(ctx context.Context) ([]store.TermTaxonomy, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var out []store.TermTaxonomy
	for _, e := range t.data.entries {
		if e.Taxonomy == t.s.taxonomy {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) LoadRelationships(ctx context.Context) ([]store.Relationship, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var out []store.Relationship
	for r := range t.data.rels {
		if e, ok := t.data.entries[r.TermTaxonomyID]; ok && e.Taxonomy == t.s.taxonomy {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) InsertTerm(ctx context.Context, term store.Term, parent int64) (int64, int64, error) {
	if err := t.check(); err != nil {
		return 0, 0, err
	}
	termID, ttID := t.data.insertTerm(term, t.s.taxonomy, parent)
	t.s.Writes++
	return termID, ttID, nil
}

func (t *tx) InsertRelationships(ctx context.Context, rels []store.Relationship) error {
	if err := t.check(); err != nil {
		return err
	}
	t.batches++
	if t.s.FailRelationshipBatch > 0 && t.batches == t.s.FailRelationshipBatch {
		return ErrInjected
	}
	for _, r := range rels {
		if _, ok := t.data.rels[r]; ok {
			return fmt.Errorf("memstore: duplicate relationship %d/%d", r.ObjectID, r.TermTaxonomyID)
		}
	}
	for _, r := range rels {
		t.data.rels[r] = struct{}{}
	}
	t.s.Writes++
	return nil
}

func (t *tx) IncrementCounts(ctx context.Context, ids []int64) error {
	if err := t.check(); err != nil {
		return err
	}
	for _, id := range ids {
		e, ok := t.data.entries[id]
		if !ok {
			return fmt.Errorf("memstore: term taxonomy %d: %w", id, internalerr.ErrNotFound)
		}
		e.Count++
		t.data.entries[id] = e
	}
	t.s.Writes++
	return nil
}

func (t *tx) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.data = t.data
	t.s.inTx = false
	t.done = true
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.inTx = false
	t.done = true
	return nil
}
