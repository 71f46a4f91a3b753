package config

import (
	"fmt"

	"github.com/jchantrell/mapcache/internal/tags"
)

// validateClasses ensures every class filter is a 1-4 character printable tag class
func validateClasses(classes []string) error {
	for _, class := range classes {
		if class == "" {
			return fmt.Errorf("class code cannot be empty")
		}
		if _, err := tags.ParseClass(class); err != nil {
			return fmt.Errorf("invalid class '%s': %w", class, err)
		}
	}
	return nil
}

// ClassCodes returns the configured class filter. An empty result matches every class.
func (c *Config) ClassCodes() []tags.ClassCode {
	out := make([]tags.ClassCode, 0, len(c.Classes))
	for _, class := range c.Classes {
		// validated by Load
		out = append(out, tags.MustParseClass(class))
	}
	return out
}
