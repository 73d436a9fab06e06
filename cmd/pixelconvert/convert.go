package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/spf13/cobra"
)

var (
	convertOutput  string
	convertFormat  string
	convertQuality int
	convertJSON    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert one image",
	Long: `Converts <input> into --format. Without --output the result is written
next to the input with the new extension, e.g. photo.png -> photo.jpg.
The target format may also be taken from the --output extension.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output path (default: input path with the target extension)")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "target format, e.g. jpg, webp, png")
	convertCmd.Flags().IntVarP(&convertQuality, "quality", "q", -1, "quality 0-100 (default from config, 90)")
	convertCmd.Flags().BoolVar(&convertJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]

	target := strings.TrimPrefix(strings.TrimSpace(convertFormat), ".")
	if target == "" && convertOutput != "" {
		target = convert.FormatFromPath(convertOutput).String()
	}
	if target == "" {
		return fmt.Errorf("--format is required when --output has no extension")
	}

	output := convertOutput
	if output == "" {
		output = convert.OutputPathFor(input, target)
	}
	quality := convertQuality
	if !cmd.Flags().Changed("quality") {
		quality = defaultQuality()
	}

	available, err := backends()
	if err != nil {
		return err
	}

	c, err := convert.New(input, output, target,
		convert.WithQuality(quality),
		convert.WithBackends(available...),
		convert.WithCreateOutputDir(),
		convert.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	result, err := c.Convert(cmd.Context())
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}

	if convertJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s, %d bytes, %s)\n",
		input, result.OutputPath, result.Backend, result.Bytes, result.Duration.Round(time.Millisecond))
	return nil
}
