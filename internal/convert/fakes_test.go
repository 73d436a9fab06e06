package convert

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEngine records every handle call in order.
type fakeEngine struct {
	name      string
	supported map[Format]bool
	openErr   error
	writeErr  error
	writeOK   bool
	calls     []string
	handle    *fakeHandle
}

func newFakeEngine(formats ...Format) *fakeEngine {
	e := &fakeEngine{name: "fake-full", supported: map[Format]bool{}, writeOK: true}
	for _, f := range formats {
		e.supported[f] = true
	}
	return e
}

func (e *fakeEngine) Name() string { return e.name }

func (e *fakeEngine) SupportsInput(f Format) bool { return e.supported[f] }

func (e *fakeEngine) Open(path string) (Handle, error) {
	e.calls = append(e.calls, "open:"+filepath.Base(path))
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.handle = &fakeHandle{engine: e, options: map[string]string{}}
	return e.handle, nil
}

type fakeHandle struct {
	engine     *fakeEngine
	background color.Color
	quality    int
	format     Format
	options    map[string]string
	closed     bool
}

func (h *fakeHandle) record(call string) {
	h.engine.calls = append(h.engine.calls, call)
}

func (h *fakeHandle) SetBackgroundColor(c color.Color) error {
	h.record("background")
	h.background = c
	return nil
}

func (h *fakeHandle) RemoveAlpha() error {
	h.record("remove_alpha")
	return nil
}

func (h *fakeHandle) FlattenLayers() error {
	h.record("flatten")
	return nil
}

func (h *fakeHandle) SetCompressionQuality(q int) error {
	h.record("quality")
	h.quality = q
	return nil
}

func (h *fakeHandle) SetFormat(f Format) error {
	h.record("format:" + f.String())
	h.format = f
	return nil
}

func (h *fakeHandle) SetOption(key, value string) error {
	h.record("option:" + key + "=" + value)
	h.options[key] = value
	return nil
}

func (h *fakeHandle) Write(path string) (bool, error) {
	h.record("write")
	if h.engine.writeErr != nil {
		return false, h.engine.writeErr
	}
	if err := os.WriteFile(path, []byte("encoded:"+h.format.String()), 0o644); err != nil {
		return false, err
	}
	return h.engine.writeOK, nil
}

func (h *fakeHandle) Close() {
	h.record("close")
	h.closed = true
}

type fakeRaster struct {
	released int
}

func (r *fakeRaster) Release() { r.released++ }

type fakeCodec struct {
	decodeErr error
	nilRaster bool
	encodeErr error
	raster    *fakeRaster
	params    EncodeParams
	encoded   Format
}

func (c *fakeCodec) Name() string { return "fake-raster" }

func (c *fakeCodec) Decode(path string, f Format) (Raster, error) {
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	if c.nilRaster {
		return nil, nil
	}
	c.raster = &fakeRaster{}
	return c.raster, nil
}

func (c *fakeCodec) Encode(r Raster, path string, f Format, params EncodeParams) (bool, error) {
	c.params = params
	c.encoded = f
	if c.encodeErr != nil {
		return false, c.encodeErr
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("raster:%s", f)), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// countingBackend fails the test if it is ever asked anything.
type countingBackend struct {
	asked int
}

func (b *countingBackend) Name() string { return "counting" }

func (b *countingBackend) Supports(Format) bool {
	b.asked++
	return true
}

func (b *countingBackend) Convert(context.Context, Request) (bool, error) {
	b.asked++
	return false, errors.New("should not run")
}

func writeInput(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("source"), 0o644))
	return path
}
