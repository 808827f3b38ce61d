package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/mediacat/pkg/mediacat/store"
	"github.com/cognicore/mediacat/pkg/mediacat/store/memstore"
	"github.com/cognicore/mediacat/pkg/mediacat/taxonomy"
)

func openAdapter(t *testing.T, mem *memstore.Store, dryRun bool) (*store.Adapter, store.Tx) {
	t.Helper()
	ctx := context.Background()
	tx, err := mem.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	a := store.NewAdapter(tx, store.AdapterOptions{DryRun: dryRun})
	_, err = a.LoadCache(ctx)
	require.NoError(t, err)
	return a, tx
}

func TestLoadCacheScopesTaxonomy(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	weddingID, weddingTT := mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)
	mem.SeedTerm("News", "news", "category", 0)
	mem.SeedRelationship(7, weddingTT)

	a, _ := openAdapter(t, mem, false)
	c := a.Cache()

	id, ok := c.Terms.Lookup("News")
	assert.True(t, ok, "terms of every taxonomy are indexed")
	_, ok = c.Taxonomy[id]
	assert.False(t, ok, "only media_category entries are cached")

	ttID, ok := c.TermTaxonomyID("wedding")
	require.True(t, ok)
	assert.Equal(t, weddingTT, ttID)
	id, _ = c.Terms.Lookup("Wedding")
	assert.Equal(t, weddingID, id)
	assert.Equal(t, 2, c.Terms.Len())
	assert.True(t, c.HasRelationship(store.Relationship{ObjectID: 7, TermTaxonomyID: weddingTT}))
}

func TestCreateTermUpdatesCacheImmediately(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	a, tx := openAdapter(t, mem, false)
	ctx := context.Background()

	parent, err := a.CreateTerm(ctx, "Wedding", 0)
	require.NoError(t, err)
	child, err := a.CreateTerm(ctx, "Bride & Groom", parent)
	require.NoError(t, err)

	id, ok := a.LookupTerm("bride-and-groom")
	require.True(t, ok, "slug is indexed")
	assert.Equal(t, child, id)
	id, ok = a.LookupTerm("BRIDE & GROOM")
	require.True(t, ok, "folded name is indexed")
	assert.Equal(t, child, id)

	require.Len(t, a.Created(), 2)
	assert.Equal(t, "bride-and-groom", a.Created()[1].Slug)
	require.NoError(t, tx.Commit())

	e, ok := mem.Entry(child)
	require.True(t, ok)
	assert.Equal(t, parent, e.Parent)
	assert.Equal(t, int64(0), e.Count)
}

func TestAssignInsertsAndCounts(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)
	a, tx := openAdapter(t, mem, false)
	ctx := context.Background()

	portraits, err := a.CreateTerm(ctx, "Portraits", 0)
	require.NoError(t, err)

	res, err := a.Assign(ctx, 10, []string{"Wedding", "Portraits", "Missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wedding", "Portraits"}, res.Assigned)
	assert.Equal(t, []string{"Missing"}, res.NotFound)
	assert.Empty(t, res.Existing)

	again, err := a.Assign(ctx, 10, []string{"wedding", "Portraits"})
	require.NoError(t, err)
	assert.Empty(t, again.Assigned)
	assert.Equal(t, []string{"wedding", "Portraits"}, again.Existing)

	require.NoError(t, tx.Commit())
	assert.Len(t, mem.Relationships(), 2)
	assert.True(t, mem.CountsConsistent())

	e, _ := mem.Entry(portraits)
	assert.Equal(t, int64(1), e.Count)
}

func TestAssignCollapsesAliasesInOneCall(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)
	a, tx := openAdapter(t, mem, false)

	res, err := a.Assign(context.Background(), 3, []string{"Wedding", "wedding"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wedding"}, res.Assigned)
	assert.Equal(t, []string{"wedding"}, res.Existing)

	require.NoError(t, tx.Commit())
	assert.True(t, mem.CountsConsistent())
}

func TestAssignTermOutsideTaxonomyIsNotFound(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("News", "news", "category", 0)
	a, _ := openAdapter(t, mem, false)

	res, err := a.Assign(context.Background(), 1, []string{"News"})
	require.NoError(t, err)
	assert.Equal(t, []string{"News"}, res.NotFound)
}

func TestAssignBatchFailureLeavesCache(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	_, tt := mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)
	mem.FailRelationshipBatch = 1
	a, _ := openAdapter(t, mem, false)

	_, err := a.Assign(context.Background(), 1, []string{"Wedding"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, memstore.ErrInjected))
	assert.False(t, a.Cache().HasRelationship(store.Relationship{ObjectID: 1, TermTaxonomyID: tt}))
}

func TestDryRunNeverWrites(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)
	a, tx := openAdapter(t, mem, true)
	ctx := context.Background()

	id, err := a.CreateTerm(ctx, "Portraits", 0)
	require.NoError(t, err)
	assert.True(t, store.IsSynthetic(id))

	second, err := a.CreateTerm(ctx, "Formal", id)
	require.NoError(t, err)
	assert.True(t, store.IsSynthetic(second))
	assert.NotEqual(t, id, second)

	res, err := a.Assign(ctx, 5, []string{"Wedding", "Portraits"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wedding", "Portraits"}, res.Assigned)

	res, err = a.Assign(ctx, 5, []string{"Portraits"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Portraits"}, res.Existing)

	require.NoError(t, tx.Commit())
	assert.Equal(t, 0, mem.Writes)
	assert.Empty(t, mem.Relationships())
	assert.Len(t, mem.Terms(), 1)
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Wedding":         "wedding",
		"Bride & Groom":   "bride-and-groom",
		"  First Dance  ": "first-dance",
		"Q&A":             "qanda",
	}
	for in, want := range cases {
		assert.Equal(t, want, store.Slug(in), in)
	}
}

func TestTermIndexExactBeforeFolded(t *testing.T) {
	x := store.NewTermIndex()
	x.Put(store.Term{ID: 1, Name: "Apple", Slug: "apple"})
	x.Put(store.Term{ID: 2, Name: "APPLE", Slug: "apple-2"})

	id, ok := x.Lookup("Apple")
	require.True(t, ok)
	assert.Equal(t, int64(1), id, "exact spelling wins")

	id, ok = x.Lookup("aPPle")
	require.True(t, ok)
	assert.Equal(t, int64(2), id, "later folded key wins")

	_, ok = x.Lookup("pear")
	assert.False(t, ok)
	assert.Equal(t, 2, x.Len())
}
