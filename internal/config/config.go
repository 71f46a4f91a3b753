package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	MapsDir   string   `mapstructure:"maps_dir"`
	Database  string   `mapstructure:"database"`
	Classes   []string `mapstructure:"classes"`
	Workers   int      `mapstructure:"workers"`
	Warmup    bool     `mapstructure:"warmup"`
	LogLevel  string   `mapstructure:"log_level"`
	LogFormat string   `mapstructure:"log_format"`
}

// Load reads mapcache.yaml from cfgFile, or from the home or working
// directory when cfgFile is empty. A missing default file is not an error.
// MAPCACHE_* environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("maps_dir", ".")
	v.SetDefault("database", "mapcache.db")
	v.SetDefault("classes", []string{})
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("warmup", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("mapcache")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("mapcache")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that has a constrained set of values.
func (c *Config) Validate() error {
	if err := validateClasses(c.Classes); err != nil {
		return fmt.Errorf("invalid class configuration: %w", err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("invalid log configuration: unsupported log format '%s': supported formats are text, json", c.LogFormat)
	}
	return nil
}
