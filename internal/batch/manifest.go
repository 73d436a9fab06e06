// Package batch runs a list of conversions described by a YAML manifest.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelconvert/internal/convert"
	"go.yaml.in/yaml/v3"
)

// Manifest is the on-disk batch description:
//
//	defaults:
//	  format: webp
//	  quality: 80
//	  output_dir: out
//	conversions:
//	  - input: photos/a.png
//	  - input: scans/b.tiff
//	    format: jpg
//	    output: out/b-small.jpg
type Manifest struct {
	Defaults    Defaults `yaml:"defaults"`
	Conversions []Item   `yaml:"conversions"`

	// BaseDir anchors relative paths. LoadManifest sets it to the manifest's directory.
	BaseDir string `yaml:"-"`
}

type Defaults struct {
	Format    string `yaml:"format,omitempty"`
	Quality   *int   `yaml:"quality,omitempty"`
	OutputDir string `yaml:"output_dir,omitempty"`
}

type Item struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output,omitempty"`
	Format  string `yaml:"format,omitempty"`
	Quality *int   `yaml:"quality,omitempty"`
}

func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	m.BaseDir = filepath.Dir(path)
	return m, nil
}

func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks every item up front so a typo fails the batch before any
// file is written.
func (m Manifest) Validate() error {
	if len(m.Conversions) == 0 {
		return errors.New("manifest has no conversions")
	}
	if f := strings.TrimSpace(m.Defaults.Format); f != "" {
		if _, err := convert.ParseFormat(f); err != nil {
			return fmt.Errorf("defaults.format: %w", err)
		}
	}

	var errs []error
	for i, item := range m.Conversions {
		if strings.TrimSpace(item.Input) == "" {
			errs = append(errs, fmt.Errorf("conversions[%d]: input is required", i))
			continue
		}
		if _, err := m.targetFor(item); err != nil {
			errs = append(errs, fmt.Errorf("conversions[%d] %s: %w", i, item.Input, err))
		}
	}
	return errors.Join(errs...)
}

func (m Manifest) targetFor(item Item) (convert.Format, error) {
	name := strings.TrimSpace(item.Format)
	if name == "" {
		name = strings.TrimSpace(m.Defaults.Format)
	}
	if name == "" {
		return "", errors.New("format is required (set it on the item or in defaults)")
	}
	return convert.ParseFormat(name)
}

// qualityFor reports the quality the manifest sets for item, if any. Without
// one the caller's options decide.
func (m Manifest) qualityFor(item Item) (int, bool) {
	switch {
	case item.Quality != nil:
		return *item.Quality, true
	case m.Defaults.Quality != nil:
		return *m.Defaults.Quality, true
	default:
		return 0, false
	}
}

func (m Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.BaseDir == "" {
		return path
	}
	return filepath.Join(m.BaseDir, path)
}

// outputFor picks the item's output path: explicit output, then
// <output_dir>/<basename>.<format>, then a sibling of the input.
func (m Manifest) outputFor(item Item, target convert.Format) string {
	if item.Output != "" {
		return m.resolve(item.Output)
	}

	input := m.resolve(item.Input)
	if dir := m.Defaults.OutputDir; dir != "" {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		return filepath.Join(m.resolve(dir), base+"."+target.String())
	}
	return convert.OutputPathFor(input, target.String())
}
