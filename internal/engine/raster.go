package engine

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelconvert/internal/convert"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

var ErrVipsUnavailable = errors.New("libvips engine requires the govips build tag and cgo")

type decodeFunc func(r io.Reader) (image.Image, error)

var rasterDecoders = map[convert.Format]decodeFunc{
	convert.FormatJPEG: jpeg.Decode,
	convert.FormatJPG:  jpeg.Decode,
	convert.FormatPNG:  png.Decode,
	convert.FormatGIF:  gif.Decode,
	convert.FormatBMP:  bmp.Decode,
	convert.FormatWebP: webp.Decode,
}

// RasterCodec decodes with the Go image packages and encodes through imaging,
// shelling out to cwebp for webp output.
type RasterCodec struct {
	webp *WebPEncoder
}

func NewRasterCodec() *RasterCodec {
	return &RasterCodec{webp: &WebPEncoder{}}
}

func (c *RasterCodec) Name() string { return "raster" }

type raster struct {
	img image.Image
}

func (r *raster) Release() {
	r.img = nil
}

func (c *RasterCodec) Decode(path string, f convert.Format) (convert.Raster, error) {
	decode, ok := rasterDecoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", convert.ErrUnsupportedFormat, f)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	img, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	return &raster{img: img}, nil
}

func (c *RasterCodec) Encode(r convert.Raster, path string, f convert.Format, params convert.EncodeParams) (bool, error) {
	src, ok := r.(*raster)
	if !ok || src.img == nil {
		return false, fmt.Errorf("raster codec cannot encode %T", r)
	}

	if f == convert.FormatWebP {
		if err := c.webp.EncodeFile(src.img, path, params.Quality); err != nil {
			return false, err
		}
		return true, nil
	}

	format, opts, err := imagingOptions(f, params)
	if err != nil {
		return false, err
	}

	out, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if err := imaging.Encode(out, src.img, format, opts...); err != nil {
		out.Close()
		return false, fmt.Errorf("encode %s: %w", f, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}

func imagingOptions(f convert.Format, params convert.EncodeParams) (imaging.Format, []imaging.EncodeOption, error) {
	switch f {
	case convert.FormatJPEG, convert.FormatJPG:
		return imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(params.Quality)}, nil
	case convert.FormatPNG:
		return imaging.PNG, []imaging.EncodeOption{imaging.PNGCompressionLevel(zlibLevel(params.CompressionLevel))}, nil
	case convert.FormatGIF:
		return imaging.GIF, nil, nil
	case convert.FormatBMP:
		return imaging.BMP, nil, nil
	default:
		return 0, nil, fmt.Errorf("%w: raster output %s", convert.ErrUnsupportedFormat, f)
	}
}

// zlibLevel buckets a 0..9 level onto the four levels image/png exposes.
func zlibLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
