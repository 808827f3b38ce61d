package apply

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/mediacat/pkg/mediacat/artifact"
	"github.com/cognicore/mediacat/pkg/mediacat/match"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
	"github.com/cognicore/mediacat/pkg/mediacat/store/memstore"
	"github.com/cognicore/mediacat/pkg/mediacat/taxonomy"
)

func record(id int64, paths ...string) match.Record {
	return match.Record{ObjectID: id, Filename: fmt.Sprintf("img_%d.jpg", id), Paths: paths}
}

func matchesOf(records ...match.Record) artifact.Matches {
	m := make(artifact.Matches, len(records))
	for _, r := range records {
		m[r.ObjectID] = r
	}
	return m
}

// runCommitted runs one pass and commits it, or rolls back on error.
func runCommitted(t *testing.T, mem *memstore.Store, opts Options, m artifact.Matches) (*Report, error) {
	t.Helper()
	ctx := context.Background()
	tx, err := mem.Begin(ctx)
	require.NoError(t, err)

	rep, err := New(opts).Run(ctx, tx, m)
	if err != nil {
		require.NoError(t, tx.Rollback())
		return rep, err
	}
	require.NoError(t, tx.Commit())
	return rep, nil
}

func TestRunCreatesAndAssigns(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	m := matchesOf(
		record(1, "Wedding", "Wedding > Portraits"),
		record(2, "Travel"),
	)

	rep, err := runCommitted(t, mem, Options{}, m)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, []string{"Travel", "Wedding", "Portraits"}, rep.CreatedNames())
	assert.Equal(t, []string{"Wedding", "Portraits"}, rep.Assignments[1])
	assert.Equal(t, []string{"Travel"}, rep.Assignments[2])
	assert.Equal(t, 3, rep.Applied())
	assert.Equal(t, 3, rep.Requested())
	assert.Empty(t, rep.Errors)
	assert.Equal(t, []int64{1, 2}, rep.ObjectIDs())

	assert.Len(t, mem.Relationships(), 3)
	assert.True(t, mem.CountsConsistent())

	// Portraits hangs under Wedding
	var weddingID, portraitsID int64
	for _, term := range mem.Terms() {
		switch term.Name {
		case "Wedding":
			weddingID = term.ID
		case "Portraits":
			portraitsID = term.ID
		}
	}
	entry, ok := mem.Entry(portraitsID)
	require.True(t, ok)
	assert.Equal(t, weddingID, entry.Parent)
}

func TestRunIsIdempotent(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	m := matchesOf(
		record(10, "Wedding > Portraits"),
		record(11, "Travel > Beach", "Wedding > Portraits"),
	)

	_, err := runCommitted(t, mem, Options{}, m)
	require.NoError(t, err)
	terms := len(mem.Terms())
	rels := len(mem.Relationships())

	second, err := runCommitted(t, mem, Options{}, m)
	require.NoError(t, err)

	assert.Empty(t, second.CreatedTerms)
	assert.Empty(t, second.Assignments)
	assert.Equal(t, []string{"Wedding", "Portraits"}, second.Skipped[10])
	assert.Equal(t, []string{"Travel", "Beach", "Wedding", "Portraits"}, second.Skipped[11])
	assert.Len(t, mem.Terms(), terms)
	assert.Len(t, mem.Relationships(), rels)
	assert.True(t, mem.CountsConsistent())
}

func TestRunRollsBackOnBatchFailure(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.FailRelationshipBatch = 5

	var records []match.Record
	for id := int64(1); id <= 10; id++ {
		records = append(records, record(id, fmt.Sprintf("Shoot > Session %d", id)))
	}

	rep, err := runCommitted(t, mem, Options{}, matchesOf(records...))
	require.Error(t, err)
	assert.ErrorIs(t, err, memstore.ErrInjected)

	require.Len(t, rep.Errors, 1)
	assert.Equal(t, int64(5), rep.Errors[0].ObjectID)
	assert.Contains(t, rep.Errors[0].Message, "database error")
	assert.NotEmpty(t, rep.CreatedTerms, "report still lists what the run attempted")

	assert.Empty(t, mem.Terms())
	assert.Empty(t, mem.Relationships())
}

func TestRunDryRunWritesNothing(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("Wedding", "wedding", taxonomy.Name, 0)

	rep, err := runCommitted(t, mem, Options{DryRun: true}, matchesOf(record(3, "Wedding > Portraits")))
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 0, mem.Writes)
	require.Len(t, rep.CreatedTerms, 1)
	assert.Equal(t, "Portraits", rep.CreatedTerms[0].Name)
	assert.True(t, store.IsSynthetic(rep.CreatedTerms[0].ID))
	assert.Equal(t, []string{"Wedding", "Portraits"}, rep.Assignments[3])
	assert.Len(t, mem.Terms(), 1)
	assert.Empty(t, mem.Relationships())
}

func TestRunHonoursMode(t *testing.T) {
	m := matchesOf(record(1, "Wedding", "Wedding > Portraits", "Wedding > Portraits > Bride"))

	for _, tc := range []struct {
		mode taxonomy.Mode
		want []string
	}{
		{taxonomy.All, []string{"Wedding", "Portraits", "Bride"}},
		{taxonomy.ChildrenOnly, []string{"Wedding", "Portraits"}},
		{taxonomy.BottomOnly, []string{"Bride"}},
	} {
		t.Run(tc.mode.String(), func(t *testing.T) {
			mem := memstore.New(taxonomy.Name)
			rep, err := runCommitted(t, mem, Options{Mode: tc.mode}, m)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, rep.Selected[1])
			assert.ElementsMatch(t, tc.want, rep.Assignments[1])
			assert.Len(t, rep.CreatedTerms, 3, "every segment exists whatever the mode")
		})
	}
}

func TestRunReportsUnresolvedNames(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	mem.SeedTerm("News", "news", "category", 0)

	rep, err := runCommitted(t, mem, Options{}, matchesOf(
		record(4, "News", "Travel"),
		record(5, " > "),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"Travel"}, rep.CreatedNames(), "News exists in another taxonomy and is reused")
	assert.Equal(t, []string{"Travel"}, rep.Assignments[4])

	var messages []string
	for _, e := range rep.Errors {
		messages = append(messages, e.String())
	}
	assert.ElementsMatch(t, []string{
		`attachment 5: invalid category path " > "`,
		"attachment 4: term not found: News",
	}, messages)
}

func TestRunEmptyMatches(t *testing.T) {
	mem := memstore.New(taxonomy.Name)
	rep, err := runCommitted(t, mem, Options{}, artifact.Matches{})
	require.NoError(t, err)
	assert.Empty(t, rep.CreatedTerms)
	assert.Zero(t, rep.Requested())
	assert.Equal(t, 0, mem.Writes)
}
