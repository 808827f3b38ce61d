// Package mediacat runs the two stages of the media categorizer: Preprocess
// matches attachment filenames against the configured rules and writes the
// matches file; Apply turns that file into media_category assignments.
package mediacat

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/mediacat/pkg/mediacat/apply"
	"github.com/cognicore/mediacat/pkg/mediacat/artifact"
	"github.com/cognicore/mediacat/pkg/mediacat/config"
	"github.com/cognicore/mediacat/pkg/mediacat/match"
	"github.com/cognicore/mediacat/pkg/mediacat/report"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
)

// Lister fetches the media objects to classify
type Lister interface {
	ListAttachments(ctx context.Context, limit int) ([]match.Object, error)
}

// Maintainer performs WordPress-side housekeeping around an apply run
type Maintainer interface {
	ExportDB(ctx context.Context, path string) error
	FlushCache(ctx context.Context) error
}

// OpenFunc connects to the term store. Apply calls it only when it needs
// the database.
type OpenFunc func(ctx context.Context) (store.Backend, error)

// Categorizer is the run controller for both stages
type Categorizer struct {
	cfg    *config.Config
	lister Lister
	maint  Maintainer
	open   OpenFunc
	log    *zap.Logger
	out    io.Writer
	now    func() time.Time
}

// Options configures a Categorizer. Only the collaborators of the stage
// being run need to be set.
type Options struct {
	Config     *config.Config
	Lister     Lister
	Maintainer Maintainer
	Open       OpenFunc
	Logger     *zap.Logger
	Out        io.Writer // dry-run summary, stdout when nil
	Now        func() time.Time
}

// New creates a Categorizer with the given dependencies
func New(opts Options) *Categorizer {
	c := &Categorizer{
		cfg:    opts.Config,
		lister: opts.Lister,
		maint:  opts.Maintainer,
		open:   opts.Open,
		log:    opts.Logger,
		out:    opts.Out,
		now:    opts.Now,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// PreprocessResult summarizes a matching run
type PreprocessResult struct {
	Total   int
	Matched int
	Path    string
}

// Preprocess lists attachments, matches them and writes the matches file.
// limit <= 0 means all attachments.
func (c *Categorizer) Preprocess(ctx context.Context, limit int) (*PreprocessResult, error) {
	objects, err := c.lister.ListAttachments(ctx, limit)
	if err != nil {
		return nil, err
	}

	m := match.New(c.cfg.Rules(), c.log)
	matches := artifact.Matches(m.Match(objects))

	path := c.cfg.Settings.MatchesPath
	if err := artifact.Write(path, matches); err != nil {
		return nil, err
	}

	res := &PreprocessResult{Total: len(objects), Matched: len(matches), Path: path}
	c.log.Info("preprocessing complete",
		zap.Int("total_attachments", res.Total),
		zap.Int("attachments_with_matches", res.Matched),
		zap.String("output", path))
	return res, nil
}

// ApplyRequest selects what Apply does. Export wins over DryRun.
type ApplyRequest struct {
	DryRun bool
	Export bool
	Backup bool
}

// Apply runs the apply stage. In export mode only the CSV log is written.
// In dry-run mode the whole pipeline runs against a transaction that is
// always rolled back, and a summary is printed. Otherwise terms and
// relationships are written in one transaction which is committed only if
// every store operation succeeds.
func (c *Categorizer) Apply(ctx context.Context, req ApplyRequest) (*apply.Report, error) {
	matches, err := artifact.Read(c.cfg.Settings.MatchesPath)
	if err != nil {
		return nil, err
	}
	mode, err := c.cfg.Mode()
	if err != nil {
		return nil, err
	}

	if req.Export {
		c.log.Info("running in export mode (CSV output only)")
		if err := c.writeCSV(matches, nil); err != nil {
			return nil, err
		}
		c.log.Info("export complete, no changes were made to WordPress")
		return nil, nil
	}

	if req.DryRun {
		c.log.Info("running in dry run mode")
	} else {
		c.log.Info("running in apply mode")
		if err := c.cfg.ValidateWordPress(); err != nil {
			return nil, err
		}
		if err := c.backup(ctx, req.Backup); err != nil {
			return nil, err
		}
	}

	backend, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	tx, err := backend.Begin(ctx)
	if err != nil {
		return nil, err
	}

	applier := apply.New(apply.Options{Mode: mode, DryRun: req.DryRun, Logger: c.log})
	rep, err := applier.Run(ctx, tx, matches)
	if err != nil || req.DryRun {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Error("rollback failed", zap.Error(rbErr))
		}
	}
	if err != nil {
		c.logErrors(rep)
		return rep, fmt.Errorf("operation failed, changes rolled back: %w", err)
	}

	if req.DryRun {
		if err := c.printSummary(matches, rep); err != nil {
			return rep, err
		}
		return rep, nil
	}

	if err := tx.Commit(); err != nil {
		return rep, fmt.Errorf("commit: %w", err)
	}
	c.logErrors(rep)

	if err := c.maint.FlushCache(ctx); err != nil {
		c.log.Warn("failed to flush WordPress cache", zap.Error(err))
	} else {
		c.log.Info("WordPress cache flushed")
	}

	if err := c.writeCSV(matches, rep); err != nil {
		c.log.Error("failed to write CSV log", zap.Error(err))
	}
	c.log.Info("apply mode completed successfully", zap.String("run_id", rep.RunID))
	return rep, nil
}

func (c *Categorizer) backup(ctx context.Context, requested bool) error {
	if !requested {
		return nil
	}
	b := c.cfg.Settings.Backup
	if !b.Enabled {
		c.log.Warn("--backup ignored: settings.backup.enabled is false")
		return nil
	}
	path := config.ExpandDate(b.OutputPath, c.now())
	c.log.Info("creating database backup", zap.String("path", path))
	if err := c.maint.ExportDB(ctx, path); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	c.log.Info("backup created", zap.String("path", path))
	return nil
}

func (c *Categorizer) logErrors(rep *apply.Report) {
	if rep == nil || len(rep.Errors) == 0 {
		return
	}
	c.log.Warn("some assignments failed", zap.Int("count", len(rep.Errors)))
	for _, e := range rep.Errors {
		c.log.Warn("assignment failed", zap.Int64("object_id", e.ObjectID), zap.String("reason", e.Message))
	}
}

func (c *Categorizer) writeCSV(matches artifact.Matches, rep *apply.Report) error {
	var created []string
	if rep != nil {
		created = rep.CreatedNames()
	}
	rows := make([]report.Row, 0, len(matches))
	for _, id := range matches.IDs() {
		rec := matches[id]
		row := report.Row{
			ObjectID: id,
			Filename: rec.Filename,
			Keywords: rec.Keywords,
			Created:  created,
		}
		if len(row.Keywords) == 0 {
			row.Keywords = []string{"preprocessed"}
		}
		if rep != nil {
			row.Assigned = rep.Assignments[id]
		}
		rows = append(rows, row)
	}

	now := c.now()
	path := config.ExpandDate(c.cfg.Settings.OutputCSVPath, now)
	if err := report.WriteCSV(path, rows, now); err != nil {
		return err
	}
	c.log.Info("results logged", zap.String("path", path))
	return nil
}

func (c *Categorizer) printSummary(matches artifact.Matches, rep *apply.Report) error {
	if len(matches) == 0 {
		c.log.Info("no attachments matched any keywords")
		return nil
	}
	rows := make([]report.SummaryRow, 0, len(matches))
	for _, id := range matches.IDs() {
		rec := matches[id]
		kw := rec.Keywords
		if len(kw) == 0 {
			kw = []string{"preprocessed"}
		}
		rows = append(rows, report.SummaryRow{
			ObjectID: id,
			Filename: rec.Filename,
			Keywords: kw,
			Terms:    rep.Selected[id],
		})
	}
	if n := len(rep.CreatedTerms); n > 0 {
		c.log.Info("dry run: terms would be created", zap.Int("count", n), zap.Strings("terms", rep.CreatedNames()))
	}
	return report.WriteSummary(c.out, rows)
}
