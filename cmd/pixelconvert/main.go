// Command pixelconvert converts images between formats from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dunamismax/pixelconvert/internal/config"
	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfgFile     string
	verbose     bool
	backendName string

	settings *viper.Viper
	logger   = log.New(io.Discard, "", 0)
)

var rootCmd = &cobra.Command{
	Use:   "pixelconvert",
	Short: "Convert images between formats",
	Long: `pixelconvert converts a single image, or a YAML batch of images, into
another format. It uses libvips when the binary is built with the govips tag
and falls back to a pure Go raster codec for jpeg, png, gif, bmp and webp.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		settings = v
		if verbose {
			logger = log.New(os.Stderr, "[pixelconvert] ", log.LstdFlags|log.Lmsgprefix)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		engine.Shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pixelconvert.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend selection and conversions to stderr")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "auto", "backend to use: auto, vips or raster")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pixelconvert %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// defaultQuality is the configured quality used when --quality is not given.
func defaultQuality() int {
	if settings == nil {
		return convert.DefaultQuality
	}
	return settings.GetInt("worker.default_quality")
}

func backends() ([]convert.Backend, error) {
	return engine.Select(backendName, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pixelconvert:", err)
		os.Exit(1)
	}
}
