//go:build govips && cgo

package engine

import (
	"fmt"
	"image/color"
	"os"
	"strconv"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelconvert/internal/convert"
)

// Formats without a dedicated libvips loader go through the ImageMagick loader,
// which is only present when libvips was built with magick support.
var vipsLoaders = map[convert.Format]vips.ImageType{
	convert.FormatJPEG: vips.ImageTypeJPEG,
	convert.FormatJPG:  vips.ImageTypeJPEG,
	convert.FormatJFIF: vips.ImageTypeJPEG,
	convert.FormatPNG:  vips.ImageTypePNG,
	convert.FormatAPNG: vips.ImageTypePNG,
	convert.FormatGIF:  vips.ImageTypeGIF,
	convert.FormatTIFF: vips.ImageTypeTIFF,
	convert.FormatTIF:  vips.ImageTypeTIFF,
	convert.FormatWebP: vips.ImageTypeWEBP,
	convert.FormatHEIC: vips.ImageTypeHEIF,
	convert.FormatHEIF: vips.ImageTypeHEIF,
	convert.FormatAVIF: vips.ImageTypeAVIF,
	convert.FormatSVG:  vips.ImageTypeSVG,
	convert.FormatPDF:  vips.ImageTypePDF,
	convert.FormatBMP:  vips.ImageTypeBMP,
}

// libvips writes these natively; every other whitelisted target would need a
// saver govips does not expose.
var vipsSavers = map[convert.Format]vips.ImageType{
	convert.FormatJPEG: vips.ImageTypeJPEG,
	convert.FormatJPG:  vips.ImageTypeJPEG,
	convert.FormatJFIF: vips.ImageTypeJPEG,
	convert.FormatPNG:  vips.ImageTypePNG,
	convert.FormatAPNG: vips.ImageTypePNG,
	convert.FormatGIF:  vips.ImageTypeGIF,
	convert.FormatTIFF: vips.ImageTypeTIFF,
	convert.FormatTIF:  vips.ImageTypeTIFF,
	convert.FormatWebP: vips.ImageTypeWEBP,
	convert.FormatHEIC: vips.ImageTypeHEIF,
	convert.FormatHEIF: vips.ImageTypeHEIF,
	convert.FormatAVIF: vips.ImageTypeAVIF,
}

type vipsEngine struct{}

func (vipsEngine) Name() string { return "vips" }

func (vipsEngine) SupportsInput(f convert.Format) bool {
	if !convert.IsSupported(f) {
		return false
	}
	t, ok := vipsLoaders[f]
	if !ok {
		t = vips.ImageTypeMagick
	}
	return vips.IsTypeSupported(t)
}

func (vipsEngine) Open(path string) (convert.Handle, error) {
	img, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	return &vipsHandle{
		img:        img,
		background: &vips.Color{R: 255, G: 255, B: 255},
		quality:    convert.DefaultQuality,
		options:    make(map[string]string),
	}, nil
}

type vipsHandle struct {
	img        *vips.ImageRef
	background *vips.Color
	quality    int
	format     convert.Format
	options    map[string]string
}

func (h *vipsHandle) SetBackgroundColor(c color.Color) error {
	r, g, b, _ := c.RGBA()
	h.background = &vips.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
	return nil
}

func (h *vipsHandle) RemoveAlpha() error {
	if !h.img.HasAlpha() {
		return nil
	}
	if err := h.img.Flatten(h.background); err != nil {
		return fmt.Errorf("flatten alpha: %w", err)
	}
	return nil
}

// FlattenLayers merges what is left of the layer stack onto the background.
// libvips loads only the first page of multi-page sources, so the remaining
// work is compositing any residual alpha.
func (h *vipsHandle) FlattenLayers() error {
	return h.RemoveAlpha()
}

func (h *vipsHandle) SetCompressionQuality(q int) error {
	h.quality = convert.ClampQuality(q)
	return nil
}

func (h *vipsHandle) SetFormat(f convert.Format) error {
	if !convert.IsSupported(f) {
		return fmt.Errorf("%w: %s", convert.ErrUnsupportedFormat, f)
	}
	if _, ok := vipsSavers[f]; !ok {
		return fmt.Errorf("%w: libvips cannot write %s", convert.ErrUnsupportedFormat, f)
	}
	h.format = f
	return nil
}

func (h *vipsHandle) SetOption(key, value string) error {
	h.options[key] = value
	return nil
}

func (h *vipsHandle) Write(path string) (bool, error) {
	if h.format == "" {
		return false, fmt.Errorf("output format is not set")
	}

	data, err := h.export()
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write output file: %w", err)
	}
	return true, nil
}

func (h *vipsHandle) Close() {
	if h.img != nil {
		h.img.Close()
		h.img = nil
	}
}

func (h *vipsHandle) boolOption(key string) bool {
	v, err := strconv.ParseBool(h.options[key])
	return err == nil && v
}

func (h *vipsHandle) intOption(key string, fallback int) int {
	v, err := strconv.Atoi(h.options[key])
	if err != nil {
		return fallback
	}
	return v
}

// libvips rejects a quality of zero.
func (h *vipsHandle) vipsQuality() int {
	return max(1, h.quality)
}

func (h *vipsHandle) export() ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch h.format {
	case convert.FormatJPEG, convert.FormatJPG, convert.FormatJFIF:
		params := vips.NewJpegExportParams()
		params.Quality = h.vipsQuality()
		params.Interlace = h.boolOption(convert.OptionInterlace)
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		params.OptimizeCoding = true
		data, _, err = h.img.ExportJpeg(params)
	case convert.FormatPNG, convert.FormatAPNG:
		params := vips.NewPngExportParams()
		params.Quality = h.vipsQuality()
		params.Compression = h.intOption(convert.OptionPNGCompression, params.Compression)
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		data, _, err = h.img.ExportPng(params)
	case convert.FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = h.vipsQuality()
		params.Lossless = h.boolOption(convert.OptionWebPLossless)
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		data, _, err = h.img.ExportWebp(params)
	case convert.FormatGIF:
		params := vips.NewGifExportParams()
		params.Quality = h.vipsQuality()
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		data, _, err = h.img.ExportGIF(params)
	case convert.FormatTIFF, convert.FormatTIF:
		params := vips.NewTiffExportParams()
		params.Quality = h.vipsQuality()
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		data, _, err = h.img.ExportTiff(params)
	case convert.FormatHEIC, convert.FormatHEIF:
		params := vips.NewHeifExportParams()
		params.Quality = h.vipsQuality()
		params.Lossless = h.quality == 100
		data, _, err = h.img.ExportHeif(params)
	case convert.FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = h.vipsQuality()
		params.Lossless = h.quality == 100
		params.StripMetadata = h.boolOption(convert.OptionStripMetadata)
		data, _, err = h.img.ExportAvif(params)
	default:
		return nil, fmt.Errorf("%w: libvips cannot write %s", convert.ErrUnsupportedFormat, h.format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", h.format, err)
	}
	return data, nil
}
