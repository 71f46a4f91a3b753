package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/mapcache/internal/cachefile"
	"github.com/jchantrell/mapcache/internal/database"
	"github.com/jchantrell/mapcache/internal/tags"
	"github.com/jchantrell/mapcache/internal/utils"
)

type IndexStats struct {
	StartTime  time.Time
	EndTime    time.Time
	Containers int
	Indexed    int
	Failed     int
	TagRows    int64
	StringRows int64
}

// buildRecord reads everything the index stores about one container.
func buildRecord(c *cachefile.Container, classes []tags.ClassCode) (*database.ContainerRecord, error) {
	digest, err := database.HeaderDigest(c.ReaderAt(), c.Size())
	if err != nil {
		return nil, fmt.Errorf("hashing header: %w", err)
	}

	id := c.Identified()
	desc := c.Format()
	rec := &database.ContainerRecord{
		Digest:     digest,
		Path:       c.Path(),
		Layout:     desc.Layout.String(),
		Engine:     desc.Engine.String(),
		Generation: desc.Generation().String(),
		Platform:   desc.Platform.String(),
		Build:      id.Build,
		Version:    id.Version,
		Scenario:   c.ScenarioName(),
		Size:       c.Size(),
		Chunked:    c.Chunked(),
	}

	for _, e := range c.Tags().All() {
		if len(classes) > 0 && !isAny(e, classes) {
			continue
		}
		rec.Tags = append(rec.Tags, database.TagRow{
			Index:  e.Index,
			ID:     e.ID,
			Class:  e.Class.String(),
			Name:   e.Name,
			Offset: e.Offset,
		})
	}

	table := c.Strings()
	for i, value := range table.All() {
		sid, ok := table.ID(i)
		if !ok {
			continue
		}
		rec.Strings = append(rec.Strings, database.StringRow{Index: i, ID: sid, Value: value})
	}
	return rec, nil
}

func isAny(e *tags.Entry, classes []tags.ClassCode) bool {
	for _, class := range classes {
		if e.IsA(class) {
			return true
		}
	}
	return false
}

var indexCmd = &cobra.Command{
	Use:   "index [dir|file]...",
	Short: "Index cache containers into the SQLite database",
	Long: `Index opens every container found under the given paths (the configured
maps directory by default) and records its header summary, tag directory
and string table in the database. Containers are keyed by a digest of their
header, so re-indexing a file replaces its rows.

Containers are read concurrently by --workers goroutines; a single
goroutine writes to the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := &IndexStats{StartTime: time.Now()}

		paths, err := collectContainers(args)
		if err != nil {
			return err
		}
		stats.Containers = len(paths)
		if len(paths) == 0 {
			slog.Info("No containers found")
			return nil
		}

		db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		indexer := database.NewIndexer(db, database.DefaultIndexOptions())

		slog.Info("Indexing containers", "count", len(paths), "database", cfg.Database, "workers", cfg.Workers)

		classes := cfg.ClassCodes()
		records := make(chan *database.ContainerRecord, cfg.Workers)
		progress := utils.NewProgress(len(paths), !noProgress)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		readers, rctx := errgroup.WithContext(ctx)
		readers.SetLimit(cfg.Workers)
		failures := make(chan string, len(paths))
		go func() {
			defer close(records)
			for _, path := range paths {
				readers.Go(func() error {
					c, err := openContainer(path)
					if err != nil {
						slog.Warn("Skipping container", "path", path, "stage", stageOf(err), "error", err)
						failures <- path
						progress.Increment(filepath.Base(path))
						return nil
					}
					defer c.Close()

					rec, err := buildRecord(c, classes)
					if err != nil {
						slog.Warn("Skipping container", "path", path, "error", err)
						failures <- path
						progress.Increment(filepath.Base(path))
						return nil
					}
					select {
					case records <- rec:
						return nil
					case <-rctx.Done():
						return rctx.Err()
					}
				})
			}
			readers.Wait()
		}()

		var insertErr error
		for rec := range records {
			if insertErr != nil {
				continue
			}
			if err := indexer.InsertContainer(ctx, rec); err != nil {
				insertErr = fmt.Errorf("indexing %s: %w", rec.Path, err)
				cancel()
				continue
			}
			stats.Indexed++
			stats.TagRows += int64(len(rec.Tags))
			stats.StringRows += int64(len(rec.Strings))
			progress.Increment(filepath.Base(rec.Path))
		}
		progress.Finish()
		close(failures)
		for range failures {
			stats.Failed++
		}
		if insertErr != nil {
			return insertErr
		}

		stats.EndTime = time.Now()
		elapsed := stats.EndTime.Sub(stats.StartTime)
		slog.Info("Index complete",
			"containers", stats.Containers,
			"indexed", stats.Indexed,
			"failed", stats.Failed,
			"tags", utils.Number(stats.TagRows),
			"strings", utils.Number(stats.StringRows),
			"duration", utils.Duration(elapsed),
			"rate", utils.Rate(stats.Indexed, elapsed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
