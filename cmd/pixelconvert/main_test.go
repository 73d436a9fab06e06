package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))))
	return path
}

func TestConvertCommandWritesSibling(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "photo.png")

	out, err := execute(t, "convert", input, "--format", ".JPG", "--backend", "raster")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(dir, "photo.jpg"))
	assert.Contains(t, out, "raster")
}

func TestConvertCommandMissingInput(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { convertOutput = "" })

	_, err := execute(t, "convert", filepath.Join(dir, "nope.png"), "-f", "gif", "-o", filepath.Join(dir, "out", "nope.gif"), "--backend", "raster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestBatchCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.png")
	manifest := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
defaults:
  format: gif
conversions:
  - input: a.png
  - input: b.png
`), 0o644))

	out, err := execute(t, "batch", manifest, "--backend", "raster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 conversions failed")
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.FileExists(t, filepath.Join(dir, "a.gif"))
}

func TestFormatsCommandListsEveryFormat(t *testing.T) {
	out, err := execute(t, "formats", "--backend", "raster")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 31)
	assert.Contains(t, out, "svg")
	assert.Regexp(t, `(?m)^png\s+raster\s+raster$`, out)
	assert.Regexp(t, `(?m)^tiff\s+extended\s+-$`, out)
}
