package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/engine"
)

func rasterBackends() []convert.Backend {
	return []convert.Backend{convert.NewLimitedBackend(engine.NewRasterCodec())}
}

func TestLocalProcessor_FileInConvertFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor := NewLocalProcessor(outputDir, rasterBackends(), nil)

	result, err := processor.Process(context.Background(), Request{
		JobID:        "job-local-1",
		SourceType:   domain.SourceTypeLocalFile,
		ObjectKey:    inputPath,
		TargetFormat: "jpeg",
		Quality:      75,
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	wantPath := filepath.Join(outputDir, "job-local-1", "input.jpeg")
	if result.Output.Key != wantPath {
		t.Fatalf("expected output %s, got %s", wantPath, result.Output.Key)
	}
	if result.Output.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", result.Output.ContentType)
	}
	if result.Conversion.Backend != "raster" {
		t.Fatalf("expected raster backend, got %s", result.Conversion.Backend)
	}
	if result.SourceBytes != int64(len(srcBytes)) {
		t.Fatalf("expected %d source bytes, got %d", len(srcBytes), result.SourceBytes)
	}
	if result.Output.Bytes == 0 || result.Output.Checksum == "" {
		t.Fatalf("expected size and checksum, got %+v", result.Output)
	}
	verifyImage(t, wantPath, "jpeg", 240)
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor := NewLocalProcessor(t.TempDir(), rasterBackends(), nil)

	_, err := processor.Process(context.Background(), Request{
		JobID:        "job-unsupported",
		SourceType:   domain.SourceTypeS3Presigned,
		ObjectKey:    "uploads/job/source",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source_type error, got %v", err)
	}
}

func TestLocalProcessor_MissingInput(t *testing.T) {
	processor := NewLocalProcessor(t.TempDir(), rasterBackends(), nil)

	_, err := processor.Process(context.Background(), Request{
		JobID:        "job-missing",
		SourceType:   domain.SourceTypeLocalFile,
		ObjectKey:    filepath.Join(t.TempDir(), "nope.png"),
		TargetFormat: "jpg",
	})
	if !errors.Is(err, convert.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestLocalProcessor_NoBackendForInput(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "scan.tiff")
	if err := os.WriteFile(inputPath, []byte("II*\x00"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	processor := NewLocalProcessor(filepath.Join(tmp, "out"), rasterBackends(), nil)
	_, err := processor.Process(context.Background(), Request{
		JobID:        "job-tiff",
		SourceType:   domain.SourceTypeLocalFile,
		ObjectKey:    inputPath,
		TargetFormat: "png",
	})
	if !errors.Is(err, convert.ErrNoBackendAvailable) {
		t.Fatalf("expected no backend available, got %v", err)
	}
}

func TestProcessor_RejectsBadRequests(t *testing.T) {
	processor := NewLocalProcessor(t.TempDir(), rasterBackends(), nil)

	if _, err := processor.Process(context.Background(), Request{TargetFormat: "png"}); err == nil {
		t.Fatal("expected error for missing job id")
	}

	_, err := processor.Process(context.Background(), Request{JobID: "job", TargetFormat: "xcf"})
	if !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported target, got %v", err)
	}
}

func TestObjectStoreProcessor_DownloadConvertUpload(t *testing.T) {
	store := newMemoryObjectStore()
	store.objects["uploads/job-obj-1/source"] = buildTestPNG(t, 64, 32)

	processor, err := NewObjectStoreProcessor(store, "results/", rasterBackends(), nil)
	if err != nil {
		t.Fatalf("new object store processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:        "job-obj-1",
		SourceType:   domain.SourceTypeS3Presigned,
		ObjectKey:    "uploads/job-obj-1/source",
		SourceFormat: "PNG",
		TargetFormat: "gif",
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	const wantKey = "results/job-obj-1/source.gif"
	if result.Output.Key != wantKey {
		t.Fatalf("expected key %s, got %s", wantKey, result.Output.Key)
	}
	if got := store.contentTypes[wantKey]; got != "image/gif" {
		t.Fatalf("expected image/gif upload, got %q", got)
	}

	img, format, err := image.Decode(bytes.NewReader(store.objects[wantKey]))
	if err != nil {
		t.Fatalf("decode uploaded object: %v", err)
	}
	if format != "gif" || img.Bounds().Dx() != 64 {
		t.Fatalf("unexpected upload: format=%s width=%d", format, img.Bounds().Dx())
	}
	if result.Output.Bytes != int64(len(store.objects[wantKey])) {
		t.Fatalf("expected %d bytes, got %d", len(store.objects[wantKey]), result.Output.Bytes)
	}
}

func TestObjectStoreProcessor_RequiresSourceFormat(t *testing.T) {
	store := newMemoryObjectStore()
	processor, err := NewObjectStoreProcessor(store, "", rasterBackends(), nil)
	if err != nil {
		t.Fatalf("new object store processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:        "job-obj-2",
		SourceType:   domain.SourceTypeS3Presigned,
		ObjectKey:    "uploads/job-obj-2/source",
		TargetFormat: "png",
	})
	if !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported source format, got %v", err)
	}
}

func TestContentTypeForFormat(t *testing.T) {
	if got := ContentTypeForFormat(convert.FormatWebP); got != "image/webp" {
		t.Fatalf("expected image/webp, got %s", got)
	}
	if got := ContentTypeForFormat(convert.FormatCR2); got != "application/octet-stream" {
		t.Fatalf("expected octet-stream fallback, got %s", got)
	}
}

type memoryObjectStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *memoryObjectStore) DownloadFile(_ context.Context, objectKey, path string) error {
	s.mu.Lock()
	data, ok := s.objects[objectKey]
	s.mu.Unlock()
	if !ok {
		return errors.New("no such key")
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *memoryObjectStore) UploadFile(_ context.Context, objectKey, path, contentType string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
	s.contentTypes[objectKey] = contentType
	return int64(len(data)), nil
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImage(t *testing.T, path, wantFormat string, wantWidth int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}
	if format != wantFormat {
		t.Fatalf("expected %s, got %s", wantFormat, format)
	}
	if got := img.Bounds().Dx(); got != wantWidth {
		t.Fatalf("expected width %d, got %d", wantWidth, got)
	}
}
