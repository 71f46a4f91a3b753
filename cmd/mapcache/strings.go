package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var stringsCmd = &cobra.Command{
	Use:   "strings <file>",
	Short: "List the string table of a cache container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contains, err := cmd.Flags().GetString("contains")
		if err != nil {
			return fmt.Errorf("failed to get contains flag: %w", err)
		}

		c, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		table := c.Strings()
		fmt.Printf("%-8s %-10s %s\n", "Index", "ID", "Value")
		fmt.Println(dashes(60))
		for i, value := range table.All() {
			if contains != "" && !strings.Contains(value, contains) {
				continue
			}
			id, ok := table.ID(i)
			if !ok {
				fmt.Printf("%-8d %-10s %s\n", i, "-", value)
				continue
			}
			fmt.Printf("%-8d %#08x %s\n", i, id, value)
		}

		if ns := table.Namespaces(); ns != nil {
			fmt.Printf("\n%d strings in %d namespaces\n", table.Len(), len(ns.Namespaces()))
		} else {
			fmt.Printf("\n%d strings\n", table.Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stringsCmd)
	stringsCmd.Flags().String("contains", "", "only show strings containing this text")
}
