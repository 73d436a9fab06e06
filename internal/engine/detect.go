// Package engine provides the concrete image backends: libvips (full-featured,
// behind the govips build tag) and a pure Go raster codec (limited).
package engine

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/dunamismax/pixelconvert/internal/convert"
)

// Detect returns the installed backends in preference order. The libvips
// backend comes first when it is compiled in; the raster backend is always last.
func Detect(logger *log.Logger) []convert.Backend {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	backends := make([]convert.Backend, 0, 2)
	if err := Startup(); err != nil {
		logger.Printf("libvips startup failed err=%v", err)
	} else if full, err := NewVips(); err == nil {
		backends = append(backends, convert.NewFullBackend(full))
	} else {
		logger.Printf("full-featured backend unavailable: %v", err)
	}

	codec := NewRasterCodec()
	if !codec.webp.Available() {
		logger.Printf("cwebp not found; raster backend cannot write webp")
	}
	backends = append(backends, convert.NewLimitedBackend(codec))

	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	logger.Printf("image backends=%v", names)
	return backends
}

// Select narrows the detected backends to name: "auto" (or empty) keeps them
// all, "vips" and "raster" keep only that one.
func Select(name string, logger *log.Logger) ([]convert.Backend, error) {
	all := Detect(logger)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return all, nil
	}

	for _, b := range all {
		if b.Name() == name {
			return []convert.Backend{b}, nil
		}
	}
	return nil, fmt.Errorf("%w: backend %q is not available in this build", convert.ErrNoBackendAvailable, name)
}
