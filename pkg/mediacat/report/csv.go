// Package report writes the per-run CSV log and the dry-run summary.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Header is the CSV column list
var Header = []string{"attachment_id", "filename", "matched_keywords", "terms_assigned", "terms_created", "timestamp"}

// TimestampLayout is the UTC format of the timestamp column
const TimestampLayout = "2006-01-02T15:04:05Z"

// Row is one matched object in the log
type Row struct {
	ObjectID int64
	Filename string
	Keywords []string
	Assigned []string
	Created  []string // every term created during the run
}

func (r Row) record(ts string) []string {
	return []string{
		strconv.FormatInt(r.ObjectID, 10),
		r.Filename,
		strings.Join(r.Keywords, ","),
		strings.Join(r.Assigned, ","),
		strings.Join(r.Created, ","),
		ts,
	}
}

// WriteCSV writes header and rows to path, creating its directory.
func WriteCSV(path string, rows []Row, now time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	ts := now.UTC().Format(TimestampLayout)
	for _, r := range rows {
		if err := w.Write(r.record(ts)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
