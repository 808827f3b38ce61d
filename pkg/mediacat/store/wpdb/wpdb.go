// Package wpdb implements store.Backend on the WordPress term tables
// (terms, term_taxonomy, term_relationships) through database/sql. The
// production driver is MySQL; any driver accepting "?" placeholders works.
package wpdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
)

// DefaultPrefix is the WordPress table prefix used when none is configured.
const DefaultPrefix = "wp_"

var validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Options selects the tables and taxonomy a Store works on.
type Options struct {
	Prefix   string
	Taxonomy string
	Logger   *zap.Logger
}

// Store implements store.Backend over a *sql.DB
type Store struct {
	db       *sql.DB
	taxonomy string
	log      *zap.Logger

	terms         string
	termTaxonomy  string
	relationships string
}

// New wraps an open database. The prefix must be a plain identifier.
func New(db *sql.DB, opts Options) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:            db,
		taxonomy:      opts.Taxonomy,
		log:           log,
		terms:         opts.Prefix + "terms",
		termTaxonomy:  opts.Prefix + "term_taxonomy",
		relationships: opts.Prefix + "term_relationships",
	}, nil
}

func (o Options) validate() error {
	if !validPrefix.MatchString(o.Prefix) {
		return fmt.Errorf("table prefix %q: %w", o.Prefix, internalerr.ErrInvalidConfig)
	}
	if o.Taxonomy == "" {
		return fmt.Errorf("taxonomy name is required: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}

// MySQLConfig holds connection settings. Socket, when set, is used instead
// of Host and Port.
type MySQLConfig struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Password string
	Database string
}

// DSN renders the go-sql-driver/mysql data source name.
func (c MySQLConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.Collation = "utf8mb4_unicode_ci"
	if c.Socket != "" {
		mc.Net = "unix"
		mc.Addr = c.Socket
	} else {
		port := c.Port
		if port == 0 {
			port = 3306
		}
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	}
	return mc.FormatDSN()
}

// Describe names the connection target without credentials.
func (c MySQLConfig) Describe() string {
	switch {
	case c.Socket != "":
		return fmt.Sprintf("%s@socket:%s", c.Database, c.Socket)
	case c.Port != 0:
		return fmt.Sprintf("%s@%s:%d", c.Database, c.Host, c.Port)
	default:
		return fmt.Sprintf("%s@%s", c.Database, c.Host)
	}
}

// OpenMySQL connects and pings the server, retrying transient failures a
// few times. Access-denied and unknown-database errors are not retried.
func OpenMySQL(ctx context.Context, cfg MySQLConfig, opts Options) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", cfg.Describe(), internalerr.ErrStoreUnavailable, err)
	}
	// One run, one transaction.
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ping := func() error {
		err := db.PingContext(ctx)
		var me *mysql.MySQLError
		if errors.As(err, &me) && (me.Number == 1045 || me.Number == 1049) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w: %w", cfg.Describe(), internalerr.ErrStoreUnavailable, err)
	}

	s, err := New(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debug("connected to database", zap.String("target", cfg.Describe()))
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts the run transaction
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w: %w", internalerr.ErrStoreUnavailable, err)
	}
	return &sqlTx{s: s, tx: tx}, nil
}

type sqlTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *sqlTx) LoadTerms(ctx context.Context) ([]store.Term, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT term_id, name, slug FROM `+t.s.terms+` ORDER BY term_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Term
	for rows.Next() {
		var term store.Term
		if err := rows.Scan(&term.ID, &term.Name, &term.Slug); err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, rows.Err()
}

func (t *sqlTx) LoadTaxonomy(ctx context.Context) ([]store.TermTaxonomy, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT term_taxonomy_id, term_id, parent, count
FROM `+t.s.termTaxonomy+`
WHERE taxonomy = ?
ORDER BY term_taxonomy_id`, t.s.taxonomy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TermTaxonomy
	for rows.Next() {
		e := store.TermTaxonomy{Taxonomy: t.s.taxonomy}
		if err := rows.Scan(&e.ID, &e.TermID, &e.Parent, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqlTx) LoadRelationships(ctx context.Context) ([]store.Relationship, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT r.object_id, r.term_taxonomy_id
FROM `+t.s.relationships+` r
JOIN `+t.s.termTaxonomy+` tt ON tt.term_taxonomy_id = r.term_taxonomy_id
WHERE tt.taxonomy = ?`, t.s.taxonomy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Relationship
	for rows.Next() {
		var r store.Relationship
		if err := rows.Scan(&r.ObjectID, &r.TermTaxonomyID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertTerm(ctx context.Context, term store.Term, parent int64) (int64, int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO `+t.s.terms+` (name, slug, term_group) VALUES (?, ?, 0)`,
		term.Name, term.Slug)
	if err != nil {
		return 0, 0, err
	}
	termID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	res, err = t.tx.ExecContext(ctx,
		`INSERT INTO `+t.s.termTaxonomy+` (term_id, taxonomy, description, parent, count) VALUES (?, ?, '', ?, 0)`,
		termID, t.s.taxonomy, parent)
	if err != nil {
		return 0, 0, err
	}
	ttID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}
	return termID, ttID, nil
}

func (t *sqlTx) InsertRelationships(ctx context.Context, rels []store.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("(?, ?, 0),", len(rels)), ",")
	args := make([]interface{}, 0, len(rels)*2)
	for _, r := range rels {
		args = append(args, r.ObjectID, r.TermTaxonomyID)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO `+t.s.relationships+` (object_id, term_taxonomy_id, term_order) VALUES `+placeholders,
		args...)
	return err
}

func (t *sqlTx) IncrementCounts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `UPDATE `+t.s.termTaxonomy+` SET count = count + 1 WHERE term_taxonomy_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
