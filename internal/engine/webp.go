package engine

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// WebPEncoder writes webp files by shelling out to cwebp, which keeps the
// default build free of cgo.
// Install: brew install webp / apt install webp
type WebPEncoder struct {
	once      sync.Once
	available bool
	cwebpPath string
}

func (e *WebPEncoder) Available() bool {
	e.once.Do(func() {
		path, err := exec.LookPath("cwebp")
		if err == nil {
			e.available = true
			e.cwebpPath = path
		}
	})
	return e.available
}

func (e *WebPEncoder) EncodeFile(img image.Image, dstPath string, quality int) error {
	if !e.Available() {
		return fmt.Errorf("cwebp not found in PATH; install with: apt install webp")
	}

	src, err := os.CreateTemp("", "pixelconvert_src_*.png")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	srcPath := src.Name()
	defer os.Remove(srcPath)

	if err := png.Encode(src, img); err != nil {
		src.Close()
		return fmt.Errorf("encode temp png: %w", err)
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("close temp png: %w", err)
	}

	cmd := exec.Command(e.cwebpPath,
		"-q", strconv.Itoa(quality),
		"-m", "6",
		"-quiet",
		srcPath,
		"-o", dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cwebp: %w: %s", err, string(out))
	}
	return nil
}
