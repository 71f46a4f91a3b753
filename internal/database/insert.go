package database

import (
	"context"
	"fmt"
	"log/slog"
)

// Indexer writes container records into the index with transaction batching
type Indexer struct {
	db        *Database
	batchSize int
}

// IndexOptions configures the indexer
type IndexOptions struct {
	// BatchSize determines how many rows to insert per transaction
	BatchSize int
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() *IndexOptions {
	return &IndexOptions{
		BatchSize: 1000,
	}
}

// NewIndexer creates an indexer over db
func NewIndexer(db *Database, options *IndexOptions) *Indexer {
	if options == nil {
		options = DefaultIndexOptions()
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultIndexOptions().BatchSize
	}

	return &Indexer{
		db:        db,
		batchSize: batchSize,
	}
}

// ContainerRecord is the indexed summary of one container
type ContainerRecord struct {
	Digest     string
	Path       string
	Layout     string
	Engine     string
	Generation string
	Platform   string
	Build      string
	Version    int32
	Scenario   string
	Size       int64
	Chunked    bool

	Tags    []TagRow
	Strings []StringRow
}

// TagRow is one non-null tag directory entry
type TagRow struct {
	Index  int
	ID     uint32
	Class  string
	Name   string
	Offset int64
}

// StringRow is one string table entry with its resolved id
type StringRow struct {
	Index int
	ID    uint32
	Value string
}

// InsertContainer replaces everything indexed under rec.Digest with rec
func (ix *Indexer) InsertContainer(ctx context.Context, rec *ContainerRecord) error {
	if rec == nil {
		return fmt.Errorf("container record cannot be nil")
	}
	if rec.Digest == "" {
		return fmt.Errorf("container record for %s has no digest", rec.Path)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, table := range []string{"strings", "tags", "containers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+quoteSQLIdentifier(table)+` WHERE digest = ?`, rec.Digest); err != nil {
			return fmt.Errorf("clearing %s for %s: %w", table, rec.Path, err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO containers
		(digest, path, layout, engine, generation, platform, build, version, scenario, size, chunked, tag_count, string_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Digest, rec.Path, rec.Layout, rec.Engine, rec.Generation, rec.Platform, rec.Build,
		rec.Version, rec.Scenario, rec.Size, rec.Chunked, len(rec.Tags), len(rec.Strings))
	if err != nil {
		return fmt.Errorf("inserting container %s: %w", rec.Path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing container %s: %w", rec.Path, err)
	}

	err = ix.insertBatches(ctx, "tags",
		`INSERT INTO tags (digest, tag_index, id, class, name, file_offset) VALUES (?, ?, ?, ?, ?, ?)`,
		len(rec.Tags), func(i int) []any {
			t := rec.Tags[i]
			return []any{rec.Digest, t.Index, t.ID, t.Class, t.Name, t.Offset}
		})
	if err != nil {
		return err
	}

	err = ix.insertBatches(ctx, "strings",
		`INSERT INTO strings (digest, string_index, id, value) VALUES (?, ?, ?, ?)`,
		len(rec.Strings), func(i int) []any {
			s := rec.Strings[i]
			return []any{rec.Digest, s.Index, s.ID, s.Value}
		})
	if err != nil {
		return err
	}

	slog.Debug("Indexed container", "path", rec.Path, "tags", len(rec.Tags), "strings", len(rec.Strings))
	return nil
}

// insertBatches inserts n rows built by values, batchSize rows per transaction
func (ix *Indexer) insertBatches(ctx context.Context, table, insertSQL string, n int, values func(int) []any) error {
	for i := 0; i < n; i += ix.batchSize {
		end := min(i+ix.batchSize, n)
		if err := ix.insertBatch(ctx, insertSQL, i, end, values); err != nil {
			return fmt.Errorf("inserting batch %d-%d for table %s: %w", i, end-1, table, err)
		}
	}
	return nil
}

// insertBatch inserts rows [start, end) within a transaction
func (ix *Indexer) insertBatch(ctx context.Context, insertSQL string, start, end int, values func(int) []any) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i := start; i < end; i++ {
		if _, err := stmt.ExecContext(ctx, values(i)...); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, identifier)
}
