// Package apply turns a matches artifact into taxonomy assignments: it
// resolves every category path once, then filters and assigns terms per
// object inside a single store transaction.
package apply

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/mediacat/pkg/mediacat/artifact"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
	"github.com/cognicore/mediacat/pkg/mediacat/taxonomy"
)

// Options configures an Applier
type Options struct {
	Mode   taxonomy.Mode
	DryRun bool
	Logger *zap.Logger
}

// Applier runs one apply pass over a transaction
type Applier struct {
	mode   taxonomy.Mode
	dryRun bool
	log    *zap.Logger
}

// New creates an Applier. A nil mode means taxonomy.All.
func New(opts Options) *Applier {
	mode := opts.Mode
	if mode == nil {
		mode = taxonomy.All
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{mode: mode, dryRun: opts.DryRun, log: log}
}

// Run loads the cache from tx, creates missing terms for every distinct path
// in matches and assigns the mode-filtered terms to each object in ascending
// id order. It never commits or rolls back tx.
//
// Unresolvable names are recorded in the report. A store error is recorded
// against its object and returned together with the partial report; the
// caller must then roll back.
func (a *Applier) Run(ctx context.Context, tx store.Tx, matches artifact.Matches) (*Report, error) {
	rep := newReport(a.dryRun)
	log := a.log.With(zap.String("run_id", rep.RunID))

	adapter := store.NewAdapter(tx, store.AdapterOptions{DryRun: a.dryRun, Logger: log})
	if _, err := adapter.LoadCache(ctx); err != nil {
		return rep, err
	}
	if len(matches) == 0 {
		log.Info("no matches to process")
		return rep, nil
	}

	ids := matches.IDs()
	parsed := make(map[int64][]taxonomy.Path, len(ids))
	distinct := make(map[string]taxonomy.Path)
	for _, id := range ids {
		for _, raw := range matches[id].Paths {
			p, err := taxonomy.ParsePath(raw)
			if err != nil {
				rep.addError(id, "invalid category path %q", raw)
				continue
			}
			parsed[id] = append(parsed[id], p)
			distinct[p.String()] = p
		}
	}

	log.Info("analyzing required taxonomy terms", zap.Int("paths", len(distinct)))
	keys := make([]string, 0, len(distinct))
	for k := range distinct {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	defer func() { rep.CreatedTerms = createdTerms(adapter.Created()) }()
	for _, k := range keys {
		if _, err := taxonomy.EnsurePath(ctx, adapter, distinct[k]); err != nil {
			return rep, err
		}
	}
	if n := len(adapter.Created()); n > 0 {
		log.Info("created new terms", zap.Int("count", n), zap.Bool("dry_run", a.dryRun))
	}

	log.Info("applying taxonomy assignments", zap.String("mode", a.mode.String()))
	for _, id := range ids {
		names := taxonomy.Filter(parsed[id], a.mode)
		if len(names) == 0 {
			continue
		}
		rep.Selected[id] = names

		res, err := adapter.Assign(ctx, id, names)
		if err != nil {
			rep.addError(id, "database error assigning terms: %v", err)
			return rep, fmt.Errorf("assign terms to object %d: %w", id, err)
		}
		for _, name := range res.NotFound {
			rep.addError(id, "term not found: %s", name)
			log.Warn("term not found", zap.Int64("object_id", id), zap.String("term", name))
		}
		if len(res.Assigned) > 0 {
			rep.Assignments[id] = res.Assigned
		}
		if len(res.Existing) > 0 {
			rep.Skipped[id] = res.Existing
		}
	}

	log.Info("applied taxonomy assignments",
		zap.Int("applied", rep.Applied()),
		zap.Int("requested", rep.Requested()),
		zap.Int("errors", len(rep.Errors)))
	return rep, nil
}

func createdTerms(terms []store.Term) []CreatedTerm {
	out := make([]CreatedTerm, len(terms))
	for i, t := range terms {
		out[i] = CreatedTerm{Name: t.Name, ID: t.ID}
	}
	return out
}
