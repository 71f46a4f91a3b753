package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jchantrell/mapcache/internal/format"
)

type registryDump struct {
	Layouts    []format.Descriptor `yaml:"layouts"`
	Signatures []format.Signature  `yaml:"signatures"`
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List every container layout and recognised build",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, err := cmd.Flags().GetBool("yaml")
		if err != nil {
			return fmt.Errorf("failed to get yaml flag: %w", err)
		}

		if asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(registryDump{
				Layouts:    format.Descriptors(),
				Signatures: format.Signatures(),
			})
		}

		fmt.Printf("%-18s %-10s %-5s %-8s %-8s %-15s %-7s %s\n",
			"Layout", "Engine", "Gen", "Platform", "Arch", "Codec", "Version", "Builds")
		fmt.Println(dashes(90))

		builds := make(map[format.Layout]int)
		for _, sig := range format.Signatures() {
			builds[sig.Layout]++
		}
		for _, d := range format.Descriptors() {
			fmt.Printf("%-18s %-10s %-5s %-8s %-8s %-15s %-7d %d\n",
				d.Layout, d.Engine, d.Generation(), d.Platform, d.Arch, d.Codec, d.Version, builds[d.Layout])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
	formatsCmd.Flags().Bool("yaml", false, "dump the full registry, signatures included, as YAML")
}
