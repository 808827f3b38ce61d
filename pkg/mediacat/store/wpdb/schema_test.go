package wpdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// wordpressSchema mirrors the columns mediacat touches in a WordPress
// install, with SQLite types.
const wordpressSchema = `
CREATE TABLE wp_terms (
	term_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	term_group INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE wp_term_taxonomy (
	term_taxonomy_id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_id INTEGER NOT NULL DEFAULT 0,
	taxonomy TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	parent INTEGER NOT NULL DEFAULT 0,
	count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(term_id, taxonomy)
);

CREATE TABLE wp_term_relationships (
	object_id INTEGER NOT NULL DEFAULT 0,
	term_taxonomy_id INTEGER NOT NULL DEFAULT 0,
	term_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(object_id, term_taxonomy_id)
);
`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "wp.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, wordpressSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedTerm(t *testing.T, db *sql.DB, name, slug, taxonomy string, parent int64) (int64, int64) {
	t.Helper()
	res, err := db.Exec(`INSERT INTO wp_terms (name, slug) VALUES (?, ?)`, name, slug)
	if err != nil {
		t.Fatal(err)
	}
	termID, _ := res.LastInsertId()
	res, err = db.Exec(`INSERT INTO wp_term_taxonomy (term_id, taxonomy, description, parent) VALUES (?, ?, '', ?)`, termID, taxonomy, parent)
	if err != nil {
		t.Fatal(err)
	}
	ttID, _ := res.LastInsertId()
	return termID, ttID
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

// inconsistentCounts returns entries whose count differs from the number of
// relationships referencing them.
func inconsistentCounts(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	err := db.QueryRow(`
SELECT COUNT(*) FROM wp_term_taxonomy tt
WHERE tt.count != (SELECT COUNT(*) FROM wp_term_relationships r WHERE r.term_taxonomy_id = tt.term_taxonomy_id)`).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n
}
