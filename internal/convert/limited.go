package convert

import (
	"context"
	"fmt"
	"math"
)

// Raster is a decoded in-memory image owned by a RasterCodec.
type Raster interface {
	Release()
}

// EncodeParams carries the per-target knob for a raster encoder. Formats without
// a quality knob (gif, bmp) leave both flags false.
type EncodeParams struct {
	Quality          int
	CompressionLevel int
	HasQuality       bool
	HasCompression   bool
}

// RasterCodec holds the format-specific decoders and encoders of a limited library.
type RasterCodec interface {
	Name() string
	Decode(path string, f Format) (Raster, error)
	Encode(r Raster, path string, f Format, params EncodeParams) (bool, error)
}

type encodeRule func(quality int) EncodeParams

var rasterEncodeRules = map[Format]encodeRule{
	FormatJPEG: qualityParams,
	FormatJPG:  qualityParams,
	FormatPNG: func(quality int) EncodeParams {
		return EncodeParams{CompressionLevel: PNGCompressionLevel(quality), HasCompression: true}
	},
	FormatGIF:  noParams,
	FormatBMP:  noParams,
	FormatWebP: qualityParams,
}

func qualityParams(quality int) EncodeParams {
	return EncodeParams{Quality: quality, HasQuality: true}
}

func noParams(int) EncodeParams {
	return EncodeParams{}
}

// PNGCompressionLevel inverts quality onto zlib's 0..9 scale: 100 -> 0, 0 -> 9.
func PNGCompressionLevel(quality int) int {
	quality = ClampQuality(quality)
	return MaxPNGCompressionLevel - int(math.Round(float64(quality)/100*MaxPNGCompressionLevel))
}

// LimitedBackend handles the common raster formats only.
type LimitedBackend struct {
	codec RasterCodec
}

func NewLimitedBackend(codec RasterCodec) *LimitedBackend {
	return &LimitedBackend{codec: codec}
}

func (b *LimitedBackend) Name() string {
	return b.codec.Name()
}

func (b *LimitedBackend) Supports(input Format) bool {
	return IsRaster(input)
}

// EncodeParamsFor returns the encoder parameters used for target at quality.
func EncodeParamsFor(target Format, quality int) (EncodeParams, error) {
	rule, ok := rasterEncodeRules[target]
	if !ok {
		return EncodeParams{}, unsupportedFormat("limited backend output", target)
	}
	return rule(ClampQuality(quality)), nil
}

func (b *LimitedBackend) Convert(ctx context.Context, req Request) (bool, error) {
	if !IsRaster(req.InputFormat) {
		return false, unsupportedFormat("limited backend input", req.InputFormat)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	raster, err := b.codec.Decode(req.InputPath, req.InputFormat)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrImageLoad, req.InputPath, err)
	}
	if raster == nil {
		return false, fmt.Errorf("%w: %s", ErrImageLoad, req.InputPath)
	}
	defer raster.Release()

	params, err := EncodeParamsFor(req.TargetFormat, req.Quality)
	if err != nil {
		return false, err
	}

	ok, err := b.codec.Encode(raster, req.OutputPath, req.TargetFormat, params)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", req.TargetFormat, err)
	}
	return ok, nil
}
