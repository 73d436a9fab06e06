package main

import (
	"fmt"
	"strings"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported formats and which backend can read each",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		available, err := backends()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range convert.SupportedFormats() {
			var readers []string
			for _, b := range available {
				if b.Supports(f) {
					readers = append(readers, b.Name())
				}
			}
			if len(readers) == 0 {
				readers = []string{"-"}
			}

			kind := "raster"
			switch {
			case convert.IsVector(f):
				kind = "vector"
			case !convert.IsRaster(f):
				kind = "extended"
			}
			fmt.Fprintf(out, "%-5s %-8s %s\n", f, kind, strings.Join(readers, ","))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "pixelconvert", version)
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd, versionCmd)
}
