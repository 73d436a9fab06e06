package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/domain"
)

// ObjectStore is the slice of the storage client the object stages need.
type ObjectStore interface {
	DownloadFile(ctx context.Context, objectKey, path string) error
	UploadFile(ctx context.Context, objectKey, path, contentType string) (int64, error)
}

func NewObjectStoreProcessor(store ObjectStore, outputPrefix string, backends []convert.Backend, logger *log.Logger) (*Processor, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	return NewProcessor(
		ObjectStoreFetcher{Store: store},
		ObjectStoreEmitter{Store: store, Prefix: outputPrefix},
		backends,
		logger,
	), nil
}

// ObjectStoreFetcher downloads presigned uploads into the work dir. The local
// copy is named source.<format> so backends can infer the input format.
type ObjectStoreFetcher struct {
	Store ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request, workDir string) (string, int64, error) {
	if !strings.EqualFold(req.SourceType, domain.SourceTypeS3Presigned) {
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	if strings.TrimSpace(req.ObjectKey) == "" {
		return "", 0, errors.New("object_key is required")
	}

	format, err := convert.ParseFormat(req.SourceFormat)
	if err != nil {
		return "", 0, fmt.Errorf("source_format: %w", err)
	}

	path := filepath.Join(workDir, "source."+format.String())
	if err := f.Store.DownloadFile(ctx, req.ObjectKey, path); err != nil {
		return "", 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat downloaded source: %w", err)
	}
	return path, info.Size(), nil
}

// ObjectStoreEmitter uploads the converted file to <Prefix>/<job>/<name>.<target>.
type ObjectStoreEmitter struct {
	Store  ObjectStore
	Prefix string
}

func (ObjectStoreEmitter) OutputPath(req Request, workDir string) (string, error) {
	return filepath.Join(workDir, "output."+strings.ToLower(req.TargetFormat)), nil
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, path string, res convert.Result) (Output, error) {
	prefix := strings.Trim(strings.TrimSpace(e.Prefix), "/")
	if prefix == "" {
		prefix = "outputs"
	}

	key := fmt.Sprintf("%s/%s/%s", prefix, sanitizePathToken(req.JobID), outputFileName(req))
	contentType := ContentTypeForFormat(res.TargetFormat)

	size, err := e.Store.UploadFile(ctx, key, path, contentType)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Key:         key,
		Format:      res.TargetFormat.String(),
		ContentType: contentType,
		Bytes:       size,
		Checksum:    res.Checksum,
	}, nil
}

var contentTypes = map[convert.Format]string{
	convert.FormatJPEG: "image/jpeg",
	convert.FormatJPG:  "image/jpeg",
	convert.FormatJFIF: "image/jpeg",
	convert.FormatPNG:  "image/png",
	convert.FormatGIF:  "image/gif",
	convert.FormatBMP:  "image/bmp",
	convert.FormatWebP: "image/webp",
	convert.FormatTIFF: "image/tiff",
	convert.FormatTIF:  "image/tiff",
	convert.FormatHEIC: "image/heic",
	convert.FormatHEIF: "image/heif",
	convert.FormatAVIF: "image/avif",
	convert.FormatICO:  "image/x-icon",
	convert.FormatSVG:  "image/svg+xml",
	convert.FormatPDF:  "application/pdf",
	convert.FormatEPS:  "application/postscript",
	convert.FormatAI:   "application/postscript",
	convert.FormatPSD:  "image/vnd.adobe.photoshop",
	convert.FormatAPNG: "image/apng",
}

func ContentTypeForFormat(f convert.Format) string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}
