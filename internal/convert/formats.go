package convert

import (
	"path/filepath"
	"sort"
	"strings"
)

// Format is a lower-case file encoding identifier such as "png" or "jpeg".
type Format string

const (
	FormatBMP  Format = "bmp"
	FormatJPEG Format = "jpeg"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatTIF  Format = "tif"
	FormatWebP Format = "webp"
	FormatHEIC Format = "heic"
	FormatHEIF Format = "heif"
	FormatPSD  Format = "psd"
	FormatICO  Format = "ico"
	FormatSVG  Format = "svg"
	FormatAI   Format = "ai"
	FormatEPS  Format = "eps"
	FormatPDF  Format = "pdf"
	FormatRAW  Format = "raw"
	FormatCR2  Format = "cr2"
	FormatNEF  Format = "nef"
	FormatARW  Format = "arw"
	FormatDNG  Format = "dng"
	FormatRW2  Format = "rw2"
	FormatORF  Format = "orf"
	FormatPEF  Format = "pef"
	FormatSRF  Format = "srf"
	FormatSR2  Format = "sr2"
	FormatEXR  Format = "exr"
	FormatDDS  Format = "dds"
	FormatAPNG Format = "apng"
	FormatJFIF Format = "jfif"
	FormatAVIF Format = "avif"
)

type formatSet map[Format]struct{}

func newFormatSet(formats ...Format) formatSet {
	s := make(formatSet, len(formats))
	for _, f := range formats {
		s[f] = struct{}{}
	}
	return s
}

func (s formatSet) has(f Format) bool {
	_, ok := s[f]
	return ok
}

var (
	supportedFormats = newFormatSet(
		FormatBMP, FormatJPEG, FormatJPG, FormatPNG, FormatGIF, FormatTIFF, FormatTIF,
		FormatWebP, FormatHEIC, FormatHEIF, FormatPSD, FormatICO, FormatSVG, FormatAI,
		FormatEPS, FormatPDF, FormatRAW, FormatCR2, FormatNEF, FormatARW, FormatDNG,
		FormatRW2, FormatORF, FormatPEF, FormatSRF, FormatSR2, FormatEXR, FormatDDS,
		FormatAPNG, FormatJFIF, FormatAVIF,
	)

	// Vector and page formats may rasterize with transparency or several layers.
	vectorFormats = newFormatSet(FormatSVG, FormatAI, FormatEPS, FormatPDF)

	rasterFormats = newFormatSet(FormatJPEG, FormatJPG, FormatPNG, FormatGIF, FormatBMP, FormatWebP)
)

// SupportedFormats returns the whitelist of formats accepted as input or target, sorted.
func SupportedFormats() []Format {
	return sortedFormats(supportedFormats)
}

// RasterFormats returns the formats the limited backend can decode and encode, sorted.
func RasterFormats() []Format {
	return sortedFormats(rasterFormats)
}

func sortedFormats(s formatSet) []Format {
	out := make([]Format, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseFormat lower-cases name and checks it against the whitelist.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(name))
	if !IsSupported(f) {
		return f, unsupportedFormat("format", f)
	}
	return f, nil
}

func IsSupported(f Format) bool {
	return supportedFormats.has(f)
}

func IsVector(f Format) bool {
	return vectorFormats.has(f)
}

func IsRaster(f Format) bool {
	return rasterFormats.has(f)
}

// FormatFromPath derives the format from the file extension, lower-cased.
func FormatFromPath(path string) Format {
	return extensionFormat(filepath.Ext(path))
}

// IsJPEG reports whether f is one of the jpeg spellings handled as jpeg by encoders.
func IsJPEG(f Format) bool {
	return f == FormatJPEG || f == FormatJPG || f == FormatJFIF
}

// extensionFormat strips leading dots from an extension and lower-cases it.
func extensionFormat(ext string) Format {
	return Format(strings.ToLower(strings.TrimLeft(ext, ".")))
}

func (f Format) String() string {
	return string(f)
}
