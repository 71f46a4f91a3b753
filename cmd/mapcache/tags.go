package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/mapcache/internal/tags"
)

func dashes(n int) string {
	return strings.Repeat("-", n)
}

var tagsCmd = &cobra.Command{
	Use:   "tags <file>",
	Short: "List the tags of a cache container",
	Long: `Tags opens a container and prints its tag directory. Use --classes to
restrict the listing to tags of (or derived from) the given classes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		filter := cfg.ClassCodes()
		matches := func(e *tags.Entry) bool {
			if len(filter) == 0 {
				return true
			}
			for _, class := range filter {
				if e.IsA(class) {
					return true
				}
			}
			return false
		}

		fmt.Printf("%-6s %-10s %-6s %-12s %s\n", "Index", "ID", "Class", "Offset", "Name")
		fmt.Println(dashes(80))

		shown := 0
		for _, e := range c.Tags().All() {
			if !matches(e) {
				continue
			}
			offset := fmt.Sprintf("%#x", e.Offset)
			if e.External {
				offset = "external"
			}
			fmt.Printf("%-6d %#08x %-6s %-12s %s\n", e.Index, e.ID, e.Class, offset, e.Name)
			shown++
		}
		fmt.Printf("\n%d of %d tags, scenario %s\n", shown, c.Tags().Len(), c.ScenarioName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}
