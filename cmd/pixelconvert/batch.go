package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dunamismax/pixelconvert/internal/batch"
	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/spf13/cobra"
)

var batchJSON bool

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Run every conversion listed in a YAML manifest",
	Long: `Runs the conversions in a manifest one after another. Relative paths are
resolved against the manifest's directory. A failing item does not stop the
batch; the command exits non-zero if any item failed.

  defaults:
    format: webp
    quality: 80
    output_dir: out
  conversions:
    - input: photos/a.png
    - input: photos/b.jpg
      format: png`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	manifest, err := batch.LoadManifest(args[0])
	if err != nil {
		return err
	}

	available, err := backends()
	if err != nil {
		return err
	}

	report := batch.Run(cmd.Context(), manifest, logger,
		convert.WithQuality(defaultQuality()),
		convert.WithBackends(available...),
	)

	if batchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INPUT\tOUTPUT\tBACKEND\tBYTES\tSTATUS")
		for _, item := range report.Items {
			status := "ok"
			if item.Err != nil {
				status = item.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", item.Input, item.Output, item.Result.Backend, item.Result.Bytes, status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed in %s\n",
			report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", report.Failed, len(report.Items))
	}
	return nil
}
