package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/domain"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrNoOutput              = errors.New("backend reported no output")
)

type Request struct {
	JobID        string
	SourceType   string
	ObjectKey    string
	SourceFormat string
	TargetFormat string
	Quality      int
}

type Output struct {
	Key         string `json:"key"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Bytes       int64  `json:"bytes"`
	Checksum    string `json:"checksum,omitempty"`
}

type Result struct {
	SourceBytes int64
	Conversion  convert.Result
	Output      Output
}

// Fetcher makes the job's source available as a local file inside workDir.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, workDir string) (path string, size int64, err error)
}

// Emitter chooses where the converter writes and publishes the written file.
type Emitter interface {
	OutputPath(req Request, workDir string) (string, error)
	Emit(ctx context.Context, req Request, path string, res convert.Result) (Output, error)
}

type Processor struct {
	fetcher  Fetcher
	emitter  Emitter
	backends []convert.Backend
	logger   *log.Logger
}

func NewProcessor(fetcher Fetcher, emitter Emitter, backends []convert.Backend, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		fetcher:  fetcher,
		emitter:  emitter,
		backends: backends,
		logger:   logger,
	}
}

func NewLocalProcessor(outputDir string, backends []convert.Backend, logger *log.Logger) *Processor {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, backends, logger)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if _, err := convert.ParseFormat(req.TargetFormat); err != nil {
		return Result{}, fmt.Errorf("target_format: %w", err)
	}

	workDir, err := os.MkdirTemp("", "pixelconvert-"+sanitizePathToken(req.JobID)+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath, sourceBytes, err := p.fetcher.Fetch(ctx, req, workDir)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	outputPath, err := p.emitter.OutputPath(req, workDir)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	c, err := convert.New(
		sourcePath,
		outputPath,
		req.TargetFormat,
		convert.WithQuality(req.Quality),
		convert.WithBackends(p.backends...),
		convert.WithLogger(p.logger),
	)
	if err != nil {
		return Result{}, fmt.Errorf("convert stage: %w", err)
	}

	conversion, err := c.Convert(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("convert stage: %w", err)
	}
	if !conversion.Written {
		return Result{}, fmt.Errorf("convert stage backend=%s: %w", conversion.Backend, ErrNoOutput)
	}

	output, err := p.emitter.Emit(ctx, req, outputPath, conversion)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		SourceBytes: sourceBytes,
		Conversion:  conversion,
		Output:      output,
	}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request, _ string) (string, int64, error) {
	if !strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return "", 0, ctx.Err()
	default:
	}

	info, err := os.Stat(req.ObjectKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("%w: %s", convert.ErrFileNotFound, req.ObjectKey)
		}
		return "", 0, fmt.Errorf("stat input file %s: %w", req.ObjectKey, err)
	}
	return req.ObjectKey, info.Size(), nil
}

// LocalFileEmitter writes outputs to <OutputDir>/<job>/<source basename>.<target>.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) OutputPath(req Request, _ string) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(jobDir, outputFileName(req)), nil
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, path string, res convert.Result) (Output, error) {
	return Output{
		Key:         path,
		Format:      res.TargetFormat.String(),
		ContentType: ContentTypeForFormat(res.TargetFormat),
		Bytes:       res.Bytes,
		Checksum:    res.Checksum,
	}, nil
}

func outputFileName(req Request) string {
	base := strings.TrimSuffix(filepath.Base(req.ObjectKey), filepath.Ext(req.ObjectKey))
	if strings.TrimSpace(base) == "" || base == "." || base == string(filepath.Separator) {
		base = "output"
	}
	return sanitizePathToken(base) + "." + strings.ToLower(req.TargetFormat)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
