package database

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaDDL creates the index tables. Rows of a container are keyed by the
// container's header digest, so re-indexing a file replaces its rows.
var schemaDDL = []struct {
	name string
	ddl  string
}{
	{"containers", `CREATE TABLE IF NOT EXISTS containers (
		digest       TEXT PRIMARY KEY,
		path         TEXT NOT NULL,
		layout       TEXT NOT NULL,
		engine       TEXT NOT NULL,
		generation   TEXT NOT NULL,
		platform     TEXT NOT NULL,
		build        TEXT NOT NULL,
		version      INTEGER NOT NULL,
		scenario     TEXT NOT NULL,
		size         INTEGER NOT NULL,
		chunked      INTEGER NOT NULL,
		tag_count    INTEGER NOT NULL,
		string_count INTEGER NOT NULL
	)`},
	{"tags", `CREATE TABLE IF NOT EXISTS tags (
		digest      TEXT NOT NULL REFERENCES containers(digest) ON DELETE CASCADE,
		tag_index   INTEGER NOT NULL,
		id          INTEGER NOT NULL,
		class       TEXT NOT NULL,
		name        TEXT NOT NULL,
		file_offset INTEGER NOT NULL,
		PRIMARY KEY (digest, tag_index)
	)`},
	{"tags_by_class", `CREATE INDEX IF NOT EXISTS tags_by_class ON tags (class, name)`},
	{"strings", `CREATE TABLE IF NOT EXISTS strings (
		digest       TEXT NOT NULL REFERENCES containers(digest) ON DELETE CASCADE,
		string_index INTEGER NOT NULL,
		id           INTEGER NOT NULL,
		value        TEXT NOT NULL,
		PRIMARY KEY (digest, string_index)
	)`},
}

// createSchema creates any missing index tables in a single transaction
func (d *Database) createSchema(ctx context.Context) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, s := range schemaDDL {
		if _, err := tx.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	slog.Debug("Index schema ready", "path", d.path, "objects", len(schemaDDL))
	return nil
}
