package convert

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound       = errors.New("input file does not exist")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrNoBackendAvailable = errors.New("no image backend available")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrImageLoad          = errors.New("failed to load image")
	ErrNotWritten         = errors.New("backend did not write an output file")
	errNilHandle          = errors.New("engine returned no image handle")
)

func unsupportedFormat(role string, f Format) error {
	return fmt.Errorf("%w: %s %q", ErrUnsupportedFormat, role, f)
}

// conversionFailed keeps both the sentinel and the backend error reachable via errors.Is.
func conversionFailed(backend string, err error) error {
	return fmt.Errorf("%w: backend=%s: %w", ErrConversionFailed, backend, err)
}
