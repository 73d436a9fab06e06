// Package convert selects an image backend for a file conversion, configures it
// with the per-format rules and runs it.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/hasher"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultQuality = 90

// Result describes a finished conversion.
type Result struct {
	Backend      string        `json:"backend"`
	InputFormat  Format        `json:"input_format"`
	TargetFormat Format        `json:"target_format"`
	OutputPath   string        `json:"output_path"`
	Written      bool          `json:"written"`
	Bytes        int64         `json:"bytes"`
	Checksum     string        `json:"checksum,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Converter converts one input file to one output file. It is not safe for
// concurrent use; give each goroutine its own Converter.
type Converter struct {
	inputPath  string
	outputPath string
	target     Format
	quality    int
	backends   []Backend
	createDir  bool
	logger     *log.Logger
	tracer     trace.Tracer
}

type Option func(*Converter)

func WithQuality(q int) Option {
	return func(c *Converter) {
		c.SetQuality(q)
	}
}

// WithBackends sets the backends in preference order. The first backend that
// supports the input format wins.
func WithBackends(backends ...Backend) Option {
	return func(c *Converter) {
		c.backends = append([]Backend(nil), backends...)
	}
}

// WithCreateOutputDir makes Convert create the output directory once the input
// has been found and a backend accepted it.
func WithCreateOutputDir() Option {
	return func(c *Converter) {
		c.createDir = true
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Converter) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func New(inputPath, outputPath, targetFormat string, opts ...Option) (*Converter, error) {
	c := &Converter{
		inputPath:  inputPath,
		outputPath: outputPath,
		quality:    DefaultQuality,
		logger:     log.New(io.Discard, "", 0),
		tracer:     otel.Tracer("pixelconvert/convert"),
	}
	if _, err := c.SetTargetFormat(targetFormat); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTargetFormat lower-cases format and stores it when it is whitelisted.
func (c *Converter) SetTargetFormat(format string) (*Converter, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return c, fmt.Errorf("target: %w", err)
	}
	c.target = f
	return c, nil
}

func (c *Converter) SetQuality(q int) *Converter {
	c.quality = ClampQuality(q)
	return c
}

func (c *Converter) TargetFormat() Format { return c.target }
func (c *Converter) Quality() int         { return c.quality }
func (c *Converter) InputPath() string    { return c.inputPath }
func (c *Converter) OutputPath() string   { return c.outputPath }

func ClampQuality(q int) int {
	return max(0, min(100, q))
}

func (c *Converter) Convert(ctx context.Context) (Result, error) {
	startedAt := time.Now()

	if _, err := os.Stat(c.inputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrFileNotFound, c.inputPath)
		}
		return Result{}, fmt.Errorf("stat input %s: %w", c.inputPath, err)
	}

	inputFormat := FormatFromPath(c.inputPath)
	if !IsSupported(inputFormat) {
		return Result{}, unsupportedFormat("input", inputFormat)
	}

	backend, err := c.selectBackend(inputFormat)
	if err != nil {
		return Result{}, err
	}

	if c.createDir {
		if dir := filepath.Dir(c.outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Result{}, fmt.Errorf("create output dir: %w", err)
			}
		}
	}

	ctx, span := c.tracer.Start(ctx, "convert.Convert")
	span.SetAttributes(
		attribute.String("convert.backend", backend.Name()),
		attribute.String("convert.input_format", inputFormat.String()),
		attribute.String("convert.target_format", c.target.String()),
		attribute.Int("convert.quality", c.quality),
	)
	defer span.End()

	req := Request{
		InputPath:    c.inputPath,
		OutputPath:   c.outputPath,
		InputFormat:  inputFormat,
		TargetFormat: c.target,
		Quality:      c.quality,
	}

	written, err := backend.Convert(ctx, req)
	if err != nil {
		err = conversionFailed(backend.Name(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion failed")
		c.logger.Printf("conversion failed backend=%s input=%s target=%s err=%v", backend.Name(), c.inputPath, c.target, err)
		return Result{}, err
	}

	result := Result{
		Backend:      backend.Name(),
		InputFormat:  inputFormat,
		TargetFormat: c.target,
		OutputPath:   c.outputPath,
		Written:      written,
	}
	if written {
		if info, statErr := os.Stat(c.outputPath); statErr == nil {
			result.Bytes = info.Size()
		}
		if sum, hashErr := hasher.FileHash(c.outputPath, hasher.DefaultHexLen); hashErr == nil {
			result.Checksum = sum
		}
	}
	result.Duration = time.Since(startedAt)

	span.SetAttributes(attribute.Int64("convert.output_bytes", result.Bytes))
	span.SetStatus(codes.Ok, "converted")
	c.logger.Printf(
		"converted backend=%s input=%s output=%s format=%s->%s quality=%d bytes=%d",
		result.Backend, c.inputPath, c.outputPath, inputFormat, c.target, c.quality, result.Bytes,
	)
	return result, nil
}

// Err reports ErrNotWritten for a result whose backend skipped the output.
func (r Result) Err() error {
	if r.Written {
		return nil
	}
	return fmt.Errorf("%w: backend=%s output=%s", ErrNotWritten, r.Backend, r.OutputPath)
}

func (c *Converter) selectBackend(input Format) (Backend, error) {
	for _, b := range c.backends {
		if b != nil && b.Supports(input) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w for format: %s", ErrNoBackendAvailable, input)
}

// OutputPathFor places "<basename>.<ext>" next to inputFile. ext may carry a
// leading dot and any case.
func OutputPathFor(inputFile, ext string) string {
	base := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	return filepath.Join(filepath.Dir(inputFile), base+"."+string(extensionFormat(ext)))
}

// ConvertSimple converts inputFile into a sibling file with the target extension.
func ConvertSimple(ctx context.Context, inputFile, targetExtension string, opts ...Option) (Result, error) {
	if _, err := os.Stat(inputFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrFileNotFound, inputFile)
		}
		return Result{}, fmt.Errorf("stat input %s: %w", inputFile, err)
	}

	target := extensionFormat(targetExtension)
	c, err := New(inputFile, OutputPathFor(inputFile, targetExtension), string(target), opts...)
	if err != nil {
		return Result{}, err
	}
	return c.Convert(ctx)
}
