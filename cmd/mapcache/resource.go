package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jchantrell/mapcache/internal/resource"
	"github.com/jchantrell/mapcache/internal/utils"
)

var (
	resLocation     string
	resOffset       int64
	resPointer      string
	resCodec        string
	resCompressed   int64
	resDecompressed int64
	resSkip         int64
	resMax          int64
	resOutput       string
)

func parseLocation(s string) (resource.Location, error) {
	if s == "" || s == "local" {
		return resource.Local, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= resource.MaxShared {
		return 0, fmt.Errorf("location must be local or 0..%d, got %q", resource.MaxShared-1, s)
	}
	return resource.Shared(i), nil
}

// locator builds the resource locator the flags describe.
func locator() (resource.Locator, error) {
	if resPointer != "" {
		p, err := strconv.ParseUint(resPointer, 0, 32)
		if err != nil {
			return resource.Locator{}, fmt.Errorf("parsing pointer: %w", err)
		}
		return resource.FromPointer(uint32(p), uint32(resCompressed)), nil
	}

	loc, err := parseLocation(resLocation)
	if err != nil {
		return resource.Locator{}, err
	}
	codec, err := resource.ParseCodec(resCodec)
	if err != nil {
		return resource.Locator{}, err
	}
	decompressed := resDecompressed
	if decompressed == 0 {
		decompressed = resCompressed
	}
	return resource.Locator{
		Location:         loc,
		Offset:           resOffset,
		Codec:            codec,
		CompressedSize:   resCompressed,
		DecompressedSize: decompressed,
	}, nil
}

var resourceCmd = &cobra.Command{
	Use:   "resource <file>",
	Short: "Extract a resource payload from a cache container",
	Long: `Resource reads one resource payload, decompressing it with the given
codec (or the container's own codec when --codec is inherit). The payload
may live in the container or in one of its shared sibling containers.

Either describe the payload with --location, --offset and the sizes, or
pass a raw --pointer whose top two bits select the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := locator()
		if err != nil {
			return err
		}
		if loc.CompressedSize <= 0 {
			return fmt.Errorf("--compressed must be positive")
		}

		c, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		slog.Debug("Reading resource",
			"location", loc.Location,
			"offset", loc.Offset,
			"codec", loc.Codec,
			"compressed", loc.CompressedSize,
			"decompressed", loc.DecompressedSize)

		maxLength := resMax
		if maxLength == 0 {
			maxLength = loc.DecompressedSize
		}
		data, err := c.ReadResource(loc, resSkip, maxLength)
		if err != nil {
			return err
		}

		if resOutput == "" || resOutput == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(resOutput, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", resOutput, err)
		}
		slog.Info("Wrote resource", "path", resOutput, "size", utils.Bytes(int64(len(data))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resourceCmd)
	resourceCmd.Flags().StringVar(&resLocation, "location", "local", "file holding the payload (local, 0, 1, 2)")
	resourceCmd.Flags().Int64Var(&resOffset, "offset", 0, "payload offset")
	resourceCmd.Flags().StringVar(&resPointer, "pointer", "", "raw data pointer, overrides --location and --offset")
	resourceCmd.Flags().StringVar(&resCodec, "codec", "inherit", "payload codec (inherit, uncompressed, deflate, oodle, unknown_deflate)")
	resourceCmd.Flags().Int64Var(&resCompressed, "compressed", 0, "stored payload size")
	resourceCmd.Flags().Int64Var(&resDecompressed, "decompressed", 0, "decompressed payload size (default: the stored size)")
	resourceCmd.Flags().Int64Var(&resSkip, "skip", 0, "decompressed bytes to skip")
	resourceCmd.Flags().Int64Var(&resMax, "max", 0, "maximum bytes to return (0 for all)")
	resourceCmd.Flags().StringVarP(&resOutput, "output", "o", "", "output file (default stdout)")
}
