package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
defaults:
  format: webp
  quality: 70
  output_dir: out
conversions:
  - input: a.png
  - input: b.tiff
    format: JPG
    quality: 40
    output: custom/b.jpg
`))
	require.NoError(t, err)
	require.Len(t, m.Conversions, 2)

	target, err := m.targetFor(m.Conversions[0])
	require.NoError(t, err)
	assert.Equal(t, convert.FormatWebP, target)
	q, ok := m.qualityFor(m.Conversions[0])
	assert.True(t, ok)
	assert.Equal(t, 70, q)
	assert.Equal(t, filepath.Join("out", "a.webp"), m.outputFor(m.Conversions[0], target))

	target, err = m.targetFor(m.Conversions[1])
	require.NoError(t, err)
	assert.Equal(t, convert.FormatJPG, target)
	q, ok = m.qualityFor(m.Conversions[1])
	assert.True(t, ok)
	assert.Equal(t, 40, q)
	assert.Equal(t, "custom/b.jpg", m.outputFor(m.Conversions[1], target))
}

func TestParseManifestRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":          `conversions: []`,
		"unknown field":  "conversions:\n  - input: a.png\n    fmt: png\n",
		"missing format": "conversions:\n  - input: a.png\n",
		"bad format":     "conversions:\n  - input: a.png\n    format: xcf\n",
		"missing input":  "defaults:\n  format: png\nconversions:\n  - format: jpg\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := ParseManifest([]byte("defaults:\n  format: xcf\nconversions:\n  - input: a.png\n"))
	assert.True(t, errors.Is(err, convert.ErrUnsupportedFormat))
}

func TestDefaultQualityAndSiblingOutput(t *testing.T) {
	m := Manifest{
		BaseDir:     "/work",
		Defaults:    Defaults{Format: "gif"},
		Conversions: []Item{{Input: "in/photo.png"}},
	}
	_, ok := m.qualityFor(m.Conversions[0])
	assert.False(t, ok)
	assert.Equal(t, "/work/in/photo.gif", m.outputFor(m.Conversions[0], convert.FormatGIF))
}

func TestLoadAndRunContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "images", "a.png"))
	writePNG(t, filepath.Join(dir, "images", "c.png"))

	manifest := `
defaults:
  format: jpg
  output_dir: out
conversions:
  - input: images/a.png
  - input: images/missing.png
  - input: images/c.png
    format: bmp
`
	manifestPath := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))

	m, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, dir, m.BaseDir)

	backend := convert.NewLimitedBackend(engine.NewRasterCodec())
	report := Run(context.Background(), m, nil, convert.WithBackends(backend))

	require.Len(t, report.Items, 3)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	assert.NoError(t, report.Items[0].Err)
	assert.Equal(t, filepath.Join(dir, "out", "a.jpg"), report.Items[0].Output)
	assert.FileExists(t, report.Items[0].Output)
	assert.Equal(t, "raster", report.Items[0].Result.Backend)

	assert.ErrorIs(t, report.Items[1].Err, convert.ErrFileNotFound)
	assert.NotEmpty(t, report.Items[1].Error)

	assert.NoError(t, report.Items[2].Err)
	assert.FileExists(t, filepath.Join(dir, "out", "c.bmp"))
}

// recordingBackend writes a placeholder output and remembers the quality of
// each request.
type recordingBackend struct {
	qualities []int
	written   bool
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Supports(convert.Format) bool { return true }

func (b *recordingBackend) Convert(_ context.Context, req convert.Request) (bool, error) {
	b.qualities = append(b.qualities, req.Quality)
	if err := os.WriteFile(req.OutputPath, []byte("out"), 0o644); err != nil {
		return false, err
	}
	return b.written, nil
}

func TestRunKeepsCallerQualityUnlessManifestSetsOne(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))

	seventyFive := 75
	m := Manifest{
		BaseDir:  dir,
		Defaults: Defaults{Format: "jpg", OutputDir: "out"},
		Conversions: []Item{
			{Input: "a.png"},
			{Input: "b.png", Quality: &seventyFive},
		},
	}

	backend := &recordingBackend{written: true}
	report := Run(context.Background(), m, nil, convert.WithQuality(40), convert.WithBackends(backend))

	require.Equal(t, 2, report.Succeeded, report.Items)
	assert.Equal(t, []int{40, 75}, backend.qualities)
	assert.FileExists(t, filepath.Join(dir, "out", "a.jpg"))
}

func TestRunCountsUnwrittenOutputAsFailure(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))

	m := Manifest{
		BaseDir:     dir,
		Defaults:    Defaults{Format: "png"},
		Conversions: []Item{{Input: "a.png", Output: "a-out.png"}},
	}
	report := Run(context.Background(), m, nil, convert.WithBackends(&recordingBackend{}))

	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Items[0].Err, convert.ErrNotWritten)
}

func TestRunDoesNotCreateOutputDirForMissingInput(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{
		BaseDir:     dir,
		Defaults:    Defaults{Format: "png", OutputDir: "out"},
		Conversions: []Item{{Input: "missing.png"}},
	}
	report := Run(context.Background(), m, nil, convert.WithBackends(&recordingBackend{written: true}))

	assert.ErrorIs(t, report.Items[0].Err, convert.ErrFileNotFound)
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := Manifest{
		Defaults:    Defaults{Format: "png"},
		Conversions: []Item{{Input: "a.png"}, {Input: "b.png"}},
	}
	report := Run(ctx, m, nil)
	assert.Equal(t, 2, report.Failed)
	for _, item := range report.Items {
		assert.ErrorIs(t, item.Err, context.Canceled)
	}
}
