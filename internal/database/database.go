// Package database stores the container index in SQLite: one row per
// container, keyed by header digest, with its tag directory and string
// table alongside.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by every operation on a closed Database.
var ErrClosed = errors.New("mapcache: database closed")

// Database is a connection to the SQLite container index
type Database struct {
	db   *sql.DB
	path string
}

// DatabaseOptions configures how the index file is opened
type DatabaseOptions struct {
	Path string

	// WALMode switches the journal to write-ahead logging
	WALMode bool

	ForeignKeys bool

	// BusyTimeout is how long a statement waits on a locked file
	BusyTimeout time.Duration
}

// DefaultDatabaseOptions returns the options the CLI uses
func DefaultDatabaseOptions(path string) *DatabaseOptions {
	return &DatabaseOptions{
		Path:        path,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 30 * time.Second,
	}
}

// NewDatabase opens (creating if needed) the index at options.Path and
// brings its schema up to date.
func NewDatabase(options *DatabaseOptions) (*Database, error) {
	switch {
	case options == nil:
		return nil, errors.New("database options cannot be nil")
	case options.Path == "":
		return nil, errors.New("database path cannot be empty")
	}

	if dir := filepath.Dir(options.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(options))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", options.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing database connection: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	d := &Database{db: db, path: options.Path}
	if err := d.createSchema(context.Background()); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// dsn renders options as a go-sqlite3 connection string
func dsn(options *DatabaseOptions) string {
	params := url.Values{}
	if options.WALMode {
		params.Set("_journal_mode", "WAL")
	}
	if options.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	if options.BusyTimeout > 0 {
		params.Set("_busy_timeout", strconv.FormatInt(options.BusyTimeout.Milliseconds(), 10))
	}
	params.Set("_synchronous", "NORMAL")
	return "file:" + options.Path + "?" + params.Encode()
}

func (d *Database) Path() string {
	return d.path
}

// conn returns the open handle or ErrClosed
func (d *Database) conn() (*sql.DB, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db, nil
}

// Close releases the connection. Closing twice is a no-op.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	db := d.db
	d.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

func (d *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

func (d *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a query expected to return at most one row. The database
// must be open.
func (d *Database) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Tables lists the user tables, sorted by name
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Column is one row of PRAGMA table_info
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    sql.NullString
	PrimaryKey bool
}

// Columns describes a table. Unknown tables yield no columns.
func (d *Database) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.Query(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("getting schema for table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		c.NotNull, c.PrimaryKey = notNull != 0, pk != 0
		columns = append(columns, c)
	}
	return columns, rows.Err()
}
