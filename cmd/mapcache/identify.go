package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jchantrell/mapcache/internal/format"
)

type identifyResult struct {
	Path       string `json:"path"`
	Layout     string `json:"layout,omitempty"`
	Engine     string `json:"engine,omitempty"`
	Generation string `json:"generation,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Arch       string `json:"arch,omitempty"`
	Version    int32  `json:"version,omitempty"`
	Build      string `json:"build,omitempty"`
	Codec      string `json:"codec,omitempty"`
	Flags      string `json:"flags,omitempty"`
	Namespaces string `json:"namespaces,omitempty"`
	ViaFolder  bool   `json:"via_folder,omitempty"`
	Error      string `json:"error,omitempty"`
}

func identifyPath(path string) identifyResult {
	id, err := format.Identify(path)
	if err != nil {
		return identifyResult{Path: path, Error: err.Error()}
	}
	return identifyResult{
		Path:       path,
		Layout:     id.Format.Layout.String(),
		Engine:     id.Format.Engine.String(),
		Generation: id.Format.Generation().String(),
		Platform:   id.Format.Platform.String(),
		Arch:       id.Format.Arch.String(),
		Version:    id.Version,
		Build:      id.Build,
		Codec:      id.Codec().String(),
		Flags:      id.Flags().String(),
		Namespaces: id.Namespaces(),
		ViaFolder:  id.ViaFolder,
	}
}

var identifyCmd = &cobra.Command{
	Use:   "identify <file>...",
	Short: "Resolve the layout of one or more cache containers",
	Long: `Identify reads each file's header and resolves its layout from the
header version, the build string and, for remastered files with an
unknown build, the install folder the file sits in.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return fmt.Errorf("failed to get json flag: %w", err)
		}

		results := make([]identifyResult, 0, len(args))
		failed := 0
		for _, path := range args {
			r := identifyPath(path)
			if r.Error != "" {
				failed++
			}
			results = append(results, r)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return fmt.Errorf("encoding results: %w", err)
			}
		} else {
			for _, r := range results {
				if r.Error != "" {
					fmt.Printf("%s: %s\n", r.Path, r.Error)
					continue
				}
				fmt.Printf("%s\n", r.Path)
				fmt.Printf("  %-12s %s (%s, %s %s)\n", "Layout", r.Layout, r.Generation, r.Platform, r.Arch)
				fmt.Printf("  %-12s %d\n", "Version", r.Version)
				fmt.Printf("  %-12s %q\n", "Build", r.Build)
				fmt.Printf("  %-12s %s\n", "Codec", r.Codec)
				if r.Flags != "none" {
					fmt.Printf("  %-12s %s\n", "Flags", r.Flags)
				}
				if r.Namespaces != "" {
					fmt.Printf("  %-12s %s\n", "Namespaces", r.Namespaces)
				}
				if r.ViaFolder {
					fmt.Printf("  %-12s %s\n", "Resolved", "from install folder")
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be identified", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.Flags().Bool("json", false, "print results as JSON")
}
