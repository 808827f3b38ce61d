package store

import "context"

// Backend opens transactions against a WordPress-shaped term store.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one all-or-nothing unit of work. Reads see the transaction's own
// writes. Every write belongs to the taxonomy the backend was opened for.
type Tx interface {
	// Loads for the run cache
	LoadTerms(ctx context.Context) ([]Term, error)
	LoadTaxonomy(ctx context.Context) ([]TermTaxonomy, error)
	LoadRelationships(ctx context.Context) ([]Relationship, error)

	// InsertTerm creates a term and its taxonomy entry with count 0.
	InsertTerm(ctx context.Context, t Term, parent int64) (termID, termTaxonomyID int64, err error)
	// InsertRelationships inserts all rows as one batch.
	InsertRelationships(ctx context.Context, rels []Relationship) error
	// IncrementCounts adds one to the count of each listed entry.
	IncrementCounts(ctx context.Context, termTaxonomyIDs []int64) error

	Commit() error
	Rollback() error
}

// Term is a row of the terms table
type Term struct {
	ID   int64
	Name string
	Slug string
}

// TermTaxonomy binds a term into the taxonomy with its parent and usage count
type TermTaxonomy struct {
	ID       int64
	TermID   int64
	Taxonomy string
	Parent   int64 // 0 for a root term
	Count    int64
}

// Relationship attaches a term-taxonomy entry to an object (attachment)
type Relationship struct {
	ObjectID       int64
	TermTaxonomyID int64
}
