package store

// Cache is the lookup surface for one run. It is loaded once from the
// transaction and then kept in step with every write the run makes.
type Cache struct {
	Terms         *TermIndex
	Taxonomy      map[int64]int64 // term id -> term_taxonomy id
	Relationships map[Relationship]struct{}
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{
		Terms:         NewTermIndex(),
		Taxonomy:      make(map[int64]int64),
		Relationships: make(map[Relationship]struct{}),
	}
}

// TermTaxonomyID resolves a term name to its taxonomy entry
func (c *Cache) TermTaxonomyID(name string) (int64, bool) {
	termID, ok := c.Terms.Lookup(name)
	if !ok {
		return 0, false
	}
	ttID, ok := c.Taxonomy[termID]
	return ttID, ok
}

// HasRelationship reports whether the pair already exists
func (c *Cache) HasRelationship(r Relationship) bool {
	_, ok := c.Relationships[r]
	return ok
}
