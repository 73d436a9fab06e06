package convert

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGCompressionLevel(t *testing.T) {
	cases := map[int]int{
		100: 0,
		0:   9,
		50:  4,
		60:  4,
		95:  0,
		10:  8,
		-20: 9,
		300: 0,
	}
	for quality, want := range cases {
		assert.Equal(t, want, PNGCompressionLevel(quality), "quality %d", quality)
	}
}

func TestEncodeParamsFor(t *testing.T) {
	tests := []struct {
		target Format
		want   EncodeParams
	}{
		{FormatJPEG, EncodeParams{Quality: 75, HasQuality: true}},
		{FormatJPG, EncodeParams{Quality: 75, HasQuality: true}},
		{FormatWebP, EncodeParams{Quality: 75, HasQuality: true}},
		{FormatPNG, EncodeParams{CompressionLevel: 2, HasCompression: true}},
		{FormatGIF, EncodeParams{}},
		{FormatBMP, EncodeParams{}},
	}
	for _, tt := range tests {
		got, err := EncodeParamsFor(tt.target, 75)
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.want, got, tt.target)
	}

	for _, target := range []Format{FormatTIFF, FormatAVIF, FormatICO, FormatJFIF} {
		_, err := EncodeParamsFor(target, 75)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, target)
	}
}

func TestLimitedBackendSupportsRasterSubsetOnly(t *testing.T) {
	b := NewLimitedBackend(&fakeCodec{})
	for _, f := range SupportedFormats() {
		assert.Equal(t, IsRaster(f), b.Supports(f), f)
	}
	assert.Len(t, RasterFormats(), 6)
}

func TestLimitedBackendRejectsNonRasterInput(t *testing.T) {
	codec := &fakeCodec{}
	_, err := NewLimitedBackend(codec).Convert(context.Background(), Request{
		InputPath:    "scan.tiff",
		OutputPath:   "scan.png",
		InputFormat:  FormatTIFF,
		TargetFormat: FormatPNG,
	})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Nil(t, codec.raster)
}

func TestLimitedBackendUnsupportedTargetReleasesRaster(t *testing.T) {
	codec := &fakeCodec{}
	c, err := New(writeInput(t, "a.png"), filepath.Join(t.TempDir(), "a.tiff"), "tiff", WithBackends(NewLimitedBackend(codec)))
	require.NoError(t, err)

	_, err = c.Convert(context.Background())
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	require.NotNil(t, codec.raster)
	assert.Equal(t, 1, codec.raster.released)
}

func TestLimitedBackendEncodeFailureReleasesRaster(t *testing.T) {
	codec := &fakeCodec{encodeErr: errors.New("encoder crashed")}
	c, err := New(writeInput(t, "a.bmp"), filepath.Join(t.TempDir(), "a.gif"), "gif", WithBackends(NewLimitedBackend(codec)))
	require.NoError(t, err)

	_, err = c.Convert(context.Background())
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.Contains(t, err.Error(), "encoder crashed")
	assert.Equal(t, 1, codec.raster.released)
}

func TestLimitedBackendImageLoadErrors(t *testing.T) {
	for name, codec := range map[string]*fakeCodec{
		"decode error": {decodeErr: errors.New("truncated stream")},
		"no image":     {nilRaster: true},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := New(writeInput(t, "a.jpg"), filepath.Join(t.TempDir(), "a.png"), "png", WithBackends(NewLimitedBackend(codec)))
			require.NoError(t, err)

			_, err = c.Convert(context.Background())
			assert.ErrorIs(t, err, ErrImageLoad)
			assert.ErrorIs(t, err, ErrConversionFailed)
		})
	}
}

func TestLimitedBackendPassesQualityThrough(t *testing.T) {
	codec := &fakeCodec{}
	c, err := New(writeInput(t, "a.webp"), filepath.Join(t.TempDir(), "a.jpeg"), "JPEG", WithQuality(33), WithBackends(NewLimitedBackend(codec)))
	require.NoError(t, err)

	result, err := c.Convert(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Written)
	assert.Equal(t, FormatJPEG, codec.encoded)
	assert.Equal(t, EncodeParams{Quality: 33, HasQuality: true}, codec.params)
}
