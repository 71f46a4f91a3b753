package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/mapcache/internal/cache"
	"github.com/jchantrell/mapcache/internal/cachefile"
	"github.com/jchantrell/mapcache/internal/utils"
)

// collectContainers expands each argument into container paths. Directories
// are walked recursively. With no arguments the configured maps directory is used.
func collectContainers(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{cfg.MapsDir}
	}

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		found, err := (&cache.Maps{Dir: arg}).ListMaps()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", arg, err)
		}
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}

type scanResult struct {
	Path     string
	Layout   string
	Scenario string
	Tags     int
	Strings  int
	Size     int64
	Chunked  bool
	Err      error
}

func scanContainer(path string) scanResult {
	c, err := openContainer(path)
	if err != nil {
		return scanResult{Path: path, Err: err}
	}
	defer c.Close()
	return scanResult{
		Path:     path,
		Layout:   c.Format().Layout.String(),
		Scenario: c.ScenarioName(),
		Tags:     c.Tags().Len(),
		Strings:  c.Strings().Len(),
		Size:     c.Size(),
		Chunked:  c.Chunked(),
	}
}

// stageOf names the open stage that failed, or "-".
func stageOf(err error) string {
	var oe *cachefile.OpenError
	if errors.As(err, &oe) {
		return string(oe.Stage)
	}
	return "-"
}

var scanCmd = &cobra.Command{
	Use:   "scan [dir|file]...",
	Short: "Open every container in a folder and summarise it",
	Long: `Scan opens every .map file found under the given directories (the
configured maps directory by default) and prints one line per container.
Files that fail to open are reported with the stage that failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		paths, err := collectContainers(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			slog.Info("No containers found")
			return nil
		}

		results := make([]scanResult, len(paths))
		progress := utils.NewProgress(len(paths), !noProgress)

		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(cfg.Workers)
		for i, path := range paths {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = scanContainer(path)
				progress.Increment(filepath.Base(path))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		progress.Finish()

		sort.SliceStable(results, func(a, b int) bool { return results[a].Path < results[b].Path })

		fmt.Printf("%-40s %-16s %-7s %-8s %-10s %s\n", "File", "Layout", "Tags", "Strings", "Size", "Scenario")
		fmt.Println(dashes(110))
		failed := 0
		for _, r := range results {
			name := r.Path
			if rel, err := filepath.Rel(cfg.MapsDir, r.Path); err == nil && !filepath.IsAbs(rel) && rel[0] != '.' {
				name = rel
			}
			if r.Err != nil {
				failed++
				fmt.Printf("%-40s failed at %s: %v\n", name, stageOf(r.Err), r.Err)
				continue
			}
			size := utils.Bytes(r.Size)
			if r.Chunked {
				size += "*"
			}
			fmt.Printf("%-40s %-16s %-7s %-8s %-10s %s\n",
				name, r.Layout, utils.Number(int64(r.Tags)), utils.Number(int64(r.Strings)), size, r.Scenario)
		}

		slog.Info("Scan complete",
			"containers", len(paths),
			"failed", failed,
			"duration", utils.Duration(time.Since(start)),
			"rate", utils.Rate(len(paths), time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
