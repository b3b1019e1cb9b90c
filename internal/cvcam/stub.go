//go:build !gocv

package cvcam

import (
	"context"

	codescanner "github.com/e7canasta/code-scanner"
)

// Camera is unavailable without the gocv build tag
type Camera struct{}

// New validates cfg and returns ErrUnavailable
func New(cfg Config) (*Camera, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

// Acquire always fails
func (c *Camera) Acquire(context.Context, codescanner.Constraints) (codescanner.Stream, error) {
	return nil, ErrUnavailable
}
