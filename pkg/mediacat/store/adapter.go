// Package store persists terms, taxonomy entries and relationships for the
// media taxonomy. Backend implementations live in subpackages; Adapter holds
// the per-run cache and the idempotent write protocol on top of a Tx.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// IsSynthetic reports whether id was handed out by a dry run rather than
// by the database. Real ids are always positive.
func IsSynthetic(id int64) bool { return id < 0 }

// Adapter is the term store for one run. It is not safe for concurrent use.
type Adapter struct {
	tx     Tx
	cache  *Cache
	dryRun bool
	log    *zap.Logger

	nextSynthetic int64
	created       []Term
}

// AdapterOptions configures NewAdapter
type AdapterOptions struct {
	DryRun bool
	Logger *zap.Logger
}

// NewAdapter wraps tx. LoadCache must be called before any other method.
func NewAdapter(tx Tx, opts AdapterOptions) *Adapter {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		tx:     tx,
		cache:  NewCache(),
		dryRun: opts.DryRun,
		log:    log,
	}
}

// Cache exposes the run cache (read-only use expected)
func (a *Adapter) Cache() *Cache { return a.cache }

// Created returns the terms created so far, in creation order
func (a *Adapter) Created() []Term { return a.created }

// LoadCache reads terms, this taxonomy's entries and existing relationships.
func (a *Adapter) LoadCache(ctx context.Context) (*Cache, error) {
	terms, err := a.tx.LoadTerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}
	entries, err := a.tx.LoadTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load term taxonomy: %w", err)
	}
	rels, err := a.tx.LoadRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	c := NewCache()
	for _, t := range terms {
		c.Terms.Put(t)
	}
	for _, e := range entries {
		c.Taxonomy[e.TermID] = e.ID
	}
	for _, r := range rels {
		c.Relationships[r] = struct{}{}
	}
	a.cache = c

	a.log.Debug("cached taxonomy data",
		zap.Int("terms", c.Terms.Len()),
		zap.Int("taxonomy_entries", len(c.Taxonomy)),
		zap.Int("relationships", len(c.Relationships)))
	return c, nil
}

// LookupTerm finds a term id by name, exact spelling first.
func (a *Adapter) LookupTerm(name string) (int64, bool) {
	return a.cache.Terms.Lookup(name)
}

// CreateTerm inserts a term and its taxonomy entry (count 0) under parent
// and registers both in the cache before returning. In dry-run mode it only
// updates the cache, using synthetic ids.
func (a *Adapter) CreateTerm(ctx context.Context, name string, parent int64) (int64, error) {
	t := Term{Name: name, Slug: Slug(name)}

	var termID, ttID int64
	if a.dryRun {
		a.nextSynthetic--
		termID = a.nextSynthetic
		ttID = a.nextSynthetic
		a.log.Debug("dry run: would create term", zap.String("term", name), zap.Int64("parent", parent))
	} else {
		var err error
		termID, ttID, err = a.tx.InsertTerm(ctx, t, parent)
		if err != nil {
			return 0, fmt.Errorf("insert term %q: %w", name, err)
		}
		a.log.Debug("created term", zap.String("term", name), zap.Int64("term_id", termID), zap.Int64("parent", parent))
	}

	t.ID = termID
	a.cache.Terms.Put(t)
	a.cache.Taxonomy[termID] = ttID
	a.created = append(a.created, t)
	return termID, nil
}

// Assignment is the outcome of assigning names to one object
type Assignment struct {
	Assigned []string
	Existing []string
	NotFound []string
}

// Assign relates objectID to every resolvable name. Names with no taxonomy
// entry are reported as NotFound; pairs already present are reported as
// Existing. New pairs are inserted as one batch and each entry's count is
// incremented once. A write error leaves the cache untouched and must abort
// the surrounding transaction.
func (a *Adapter) Assign(ctx context.Context, objectID int64, names []string) (Assignment, error) {
	var out Assignment
	var batch []Relationship
	pending := make(map[Relationship]struct{})

	for _, name := range names {
		ttID, ok := a.cache.TermTaxonomyID(name)
		if !ok {
			out.NotFound = append(out.NotFound, name)
			continue
		}
		rel := Relationship{ObjectID: objectID, TermTaxonomyID: ttID}
		if _, dup := pending[rel]; dup || a.cache.HasRelationship(rel) {
			a.log.Debug("relationship already exists", zap.Int64("object_id", objectID), zap.String("term", name))
			out.Existing = append(out.Existing, name)
			continue
		}
		pending[rel] = struct{}{}
		batch = append(batch, rel)
		out.Assigned = append(out.Assigned, name)
	}

	if len(batch) == 0 {
		return out, nil
	}

	if !a.dryRun {
		if err := a.tx.InsertRelationships(ctx, batch); err != nil {
			return out, fmt.Errorf("insert relationships for object %d: %w", objectID, err)
		}
		ids := make([]int64, len(batch))
		for i, r := range batch {
			ids[i] = r.TermTaxonomyID
		}
		if err := a.tx.IncrementCounts(ctx, ids); err != nil {
			return out, fmt.Errorf("update term counts for object %d: %w", objectID, err)
		}
	}

	for _, r := range batch {
		a.cache.Relationships[r] = struct{}{}
	}
	a.log.Debug("assigned terms", zap.Int64("object_id", objectID), zap.Strings("terms", out.Assigned), zap.Bool("dry_run", a.dryRun))
	return out, nil
}
