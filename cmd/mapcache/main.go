package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/mapcache/internal/cachefile"
	"github.com/jchantrell/mapcache/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	mapsDir    string
	dbPath     string
	classes    []string
	workers    int
	warmup     bool
	logLevel   string
	logFormat  string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "mapcache",
	Short: "Halo cache container reader and indexer",
	Long: `mapcache reads Halo cache containers (.map files) from every generation
of the engine, on every platform the series shipped on.

It identifies a container's layout from its header, lists its tags and
strings, extracts resource payloads, and indexes whole install folders
into a queryable SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		applyOverrides(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		slog.SetDefault(newLogger(cfg))

		slog.Debug("Configuration",
			"maps_dir", cfg.MapsDir,
			"database", cfg.Database,
			"classes", cfg.Classes,
			"workers", cfg.Workers,
			"warmup", cfg.Warmup,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// applyOverrides copies every flag the user set onto the loaded config.
func applyOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("maps-dir") {
		cfg.MapsDir = mapsDir
	}
	if flags.Changed("database") {
		cfg.Database = dbPath
	}
	if flags.Changed("classes") {
		cfg.Classes = classes
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("warmup") {
		cfg.Warmup = warmup
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
}

func newLogger(c *config.Config) *slog.Logger {
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: c.Level(), TimeFormat: "15:04:05.000"}))
}

// openContainer opens path with the options the configuration asks for.
func openContainer(path string) (*cachefile.Container, error) {
	opts := []cachefile.Option{cachefile.WithLogger(slog.Default())}
	if !cfg.Warmup {
		opts = append(opts, cachefile.WithWarmup(nil))
	}
	return cachefile.OpenFile(path, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mapcache.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&mapsDir, "maps-dir", "m", "", "directory holding cache containers")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "database file path")
	rootCmd.PersistentFlags().StringSliceVar(&classes, "classes", []string{}, "comma-separated list of tag classes to include")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of containers processed concurrently")
	rootCmd.PersistentFlags().BoolVar(&warmup, "warmup", true, "warm scenario and resource tags in the background after open (Gen3 and later)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
