//go:build mage

// Package main contains Mage build targets for pixelconvert.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binDir = "bin"

var commands = []string{"pixelconvert", "api", "worker"}

// Build compiles every command into bin/ with the pure Go raster backend.
func Build() error {
	return build(false)
}

// BuildVips compiles every command with the libvips backend (needs cgo and libvips).
func BuildVips() error {
	return build(true)
}

func build(vips bool) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}

	args := []string{"build", "-trimpath", "-ldflags", "-X main.version=" + version()}
	if vips {
		args = append(args, "-tags", "govips")
	}
	for _, name := range commands {
		out := filepath.Join(binDir, name)
		if err := sh.RunV("go", append(args, "-o", out, "./cmd/"+name)...); err != nil {
			return fmt.Errorf("go build %s: %w", name, err)
		}
		fmt.Printf("Built %s\n", out)
	}
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// TestVips runs the unit tests including the libvips backend.
func TestVips() error {
	return sh.RunV("go", "test", "-tags", "govips", "./...")
}

// Vet runs go vet for both build variants.
func Vet() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "vet", "-tags", "govips", "./...")
}

// Check runs vet and tests.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}

func version() string {
	if v := os.Getenv("PIXELCONVERT_VERSION"); v != "" {
		return v
	}
	v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || v == "" {
		return "dev"
	}
	return v
}
