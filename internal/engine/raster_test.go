package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"golang.org/x/image/bmp"
)

func TestRasterCodecConvertsBetweenRasterFormats(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	writeTestPNG(t, inputPath, 120, 60)

	backend := convert.NewLimitedBackend(NewRasterCodec())

	cases := []struct {
		target string
		decode func(f *os.File) (image.Image, error)
	}{
		{"jpg", func(f *os.File) (image.Image, error) { return jpeg.Decode(f) }},
		{"jpeg", func(f *os.File) (image.Image, error) { return jpeg.Decode(f) }},
		{"png", func(f *os.File) (image.Image, error) { return png.Decode(f) }},
		{"gif", func(f *os.File) (image.Image, error) { return gif.Decode(f) }},
		{"bmp", func(f *os.File) (image.Image, error) { return bmp.Decode(f) }},
	}

	for _, tc := range cases {
		outputPath := filepath.Join(tmp, "output."+tc.target)
		c, err := convert.New(inputPath, outputPath, tc.target, convert.WithQuality(80), convert.WithBackends(backend))
		if err != nil {
			t.Fatalf("new converter %s: %v", tc.target, err)
		}

		result, err := c.Convert(context.Background())
		if err != nil {
			t.Fatalf("convert to %s: %v", tc.target, err)
		}
		if !result.Written || result.Backend != "raster" {
			t.Fatalf("unexpected result for %s: %+v", tc.target, result)
		}

		f, err := os.Open(outputPath)
		if err != nil {
			t.Fatalf("open output %s: %v", outputPath, err)
		}
		img, err := tc.decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode %s output: %v", tc.target, err)
		}
		if got := img.Bounds().Dx(); got != 120 {
			t.Fatalf("expected width 120 for %s, got %d", tc.target, got)
		}
	}
}

func TestRasterCodecCorruptInputIsImageLoadError(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "broken.jpg")
	if err := os.WriteFile(inputPath, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	c, err := convert.New(inputPath, filepath.Join(tmp, "out.png"), "png", convert.WithBackends(convert.NewLimitedBackend(NewRasterCodec())))
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	_, err = c.Convert(context.Background())
	if !errors.Is(err, convert.ErrImageLoad) {
		t.Fatalf("expected ErrImageLoad, got %v", err)
	}
}

func TestRasterCodecWebPOutput(t *testing.T) {
	codec := NewRasterCodec()
	if !codec.webp.Available() {
		t.Skip("cwebp not installed")
	}

	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	writeTestPNG(t, inputPath, 32, 32)

	c, err := convert.New(inputPath, filepath.Join(tmp, "out.webp"), "webp", convert.WithBackends(convert.NewLimitedBackend(codec)))
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	result, err := c.Convert(context.Background())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if result.Bytes == 0 {
		t.Fatal("expected non-empty webp output")
	}
}

func TestZlibLevel(t *testing.T) {
	cases := map[int]png.CompressionLevel{
		0: png.NoCompression,
		1: png.BestSpeed,
		3: png.BestSpeed,
		4: png.DefaultCompression,
		6: png.DefaultCompression,
		7: png.BestCompression,
		9: png.BestCompression,
	}
	for level, want := range cases {
		if got := zlibLevel(level); got != want {
			t.Fatalf("level %d: expected %v, got %v", level, want, got)
		}
	}
}

func TestDetectAlwaysEndsWithRasterBackend(t *testing.T) {
	backends := Detect(nil)
	if len(backends) == 0 {
		t.Fatal("expected at least one backend")
	}
	last := backends[len(backends)-1]
	if last.Name() != "raster" {
		t.Fatalf("expected raster backend last, got %s", last.Name())
	}
	if last.Supports(convert.FormatTIFF) {
		t.Fatal("raster backend must not claim tiff input")
	}
}

func TestSelectBackend(t *testing.T) {
	backends, err := Select("RASTER", nil)
	if err != nil {
		t.Fatalf("select raster: %v", err)
	}
	if len(backends) != 1 || backends[0].Name() != "raster" {
		t.Fatalf("expected only the raster backend, got %d", len(backends))
	}

	all, err := Select("auto", nil)
	if err != nil || len(all) != len(Detect(nil)) {
		t.Fatalf("expected auto to keep every backend, got %d err=%v", len(all), err)
	}

	if _, err := Select("imagemagick", nil); !errors.Is(err, convert.ErrNoBackendAvailable) {
		t.Fatalf("expected no backend available, got %v", err)
	}
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
}
