package convert

import (
	"context"
	"image/color"
)

// Request is a validated, immutable conversion order handed to a Backend.
type Request struct {
	InputPath    string
	OutputPath   string
	InputFormat  Format
	TargetFormat Format
	Quality      int
}

// Backend is one image engine the converter can dispatch to. Supports is asked
// with the input format; Convert reports the engine's write-success flag.
type Backend interface {
	Name() string
	Supports(input Format) bool
	Convert(ctx context.Context, req Request) (bool, error)
}

// Format option keys understood by full-featured engines.
const (
	OptionInterlace        = "jpeg:interlace"
	OptionStripMetadata    = "strip"
	OptionPNGCompression   = "png:compression-level"
	OptionWebPLossless     = "webp:lossless"
	MaxPNGCompressionLevel = 9
)

var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Engine is the capability surface of a full-featured imaging library.
type Engine interface {
	Name() string
	// SupportsInput asks the library at runtime whether it can load f.
	SupportsInput(f Format) bool
	Open(path string) (Handle, error)
}

// Handle is an opened image inside an Engine. Settings accumulate until Write.
type Handle interface {
	SetBackgroundColor(c color.Color) error
	RemoveAlpha() error
	FlattenLayers() error
	SetCompressionQuality(q int) error
	SetFormat(f Format) error
	SetOption(key, value string) error
	Write(path string) (bool, error)
	Close()
}
