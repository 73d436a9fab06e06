//go:build !govips || !cgo

package engine

import "github.com/dunamismax/pixelconvert/internal/convert"

func Startup() error {
	return nil
}

func Shutdown() {}

func NewVips() (convert.Engine, error) {
	return nil, ErrVipsUnavailable
}
