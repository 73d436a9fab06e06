package convert

import (
	"context"
	"fmt"
	"strconv"
)

// optimizer applies target-specific encoder options to an open handle.
type optimizer func(h Handle, quality int) error

var targetOptimizers = map[Format]optimizer{
	FormatJPEG: optimizeJPEG,
	FormatJPG:  optimizeJPEG,
	FormatPNG:  optimizePNG,
	FormatWebP: optimizeWebP,
}

func optimizeJPEG(h Handle, _ int) error {
	if err := h.SetOption(OptionInterlace, "true"); err != nil {
		return err
	}
	return h.SetOption(OptionStripMetadata, "true")
}

func optimizePNG(h Handle, _ int) error {
	return h.SetOption(OptionPNGCompression, strconv.Itoa(MaxPNGCompressionLevel))
}

func optimizeWebP(h Handle, quality int) error {
	return h.SetOption(OptionWebPLossless, strconv.FormatBool(quality == 100))
}

// FullBackend drives a full-featured Engine. It accepts any input format the
// engine reports as loadable.
type FullBackend struct {
	engine Engine
}

func NewFullBackend(engine Engine) *FullBackend {
	return &FullBackend{engine: engine}
}

func (b *FullBackend) Name() string {
	return b.engine.Name()
}

func (b *FullBackend) Supports(input Format) bool {
	return b.engine.SupportsInput(input)
}

func (b *FullBackend) Convert(ctx context.Context, req Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	h, err := b.engine.Open(req.InputPath)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", req.InputPath, err)
	}
	if h == nil {
		return false, errNilHandle
	}
	defer h.Close()

	if IsVector(req.InputFormat) {
		if err := flattenOnWhite(h); err != nil {
			return false, err
		}
	}

	if err := h.SetCompressionQuality(req.Quality); err != nil {
		return false, fmt.Errorf("set quality: %w", err)
	}
	if err := h.SetFormat(req.TargetFormat); err != nil {
		return false, fmt.Errorf("set format %s: %w", req.TargetFormat, err)
	}
	if optimize, ok := targetOptimizers[req.TargetFormat]; ok {
		if err := optimize(h, req.Quality); err != nil {
			return false, fmt.Errorf("optimize %s: %w", req.TargetFormat, err)
		}
	}

	ok, err := h.Write(req.OutputPath)
	if err != nil {
		return false, fmt.Errorf("write %s: %w", req.OutputPath, err)
	}
	return ok, nil
}

func flattenOnWhite(h Handle) error {
	if err := h.SetBackgroundColor(White); err != nil {
		return fmt.Errorf("set background: %w", err)
	}
	if err := h.RemoveAlpha(); err != nil {
		return fmt.Errorf("remove alpha: %w", err)
	}
	if err := h.FlattenLayers(); err != nil {
		return fmt.Errorf("flatten layers: %w", err)
	}
	return nil
}
