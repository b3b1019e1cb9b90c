// Package cvcam is an OpenCV camera backend (gocv).
//
// It is compiled only with the gocv build tag, since gocv needs a system
// OpenCV installation. Without the tag New returns ErrUnavailable.
package cvcam

import (
	"errors"
	"fmt"

	codescanner "github.com/e7canasta/code-scanner"
)

// ErrUnavailable is returned by New in builds without the gocv tag
var ErrUnavailable = errors.New("cvcam: built without gocv support (use -tags gocv)")

// Config configures the OpenCV camera
type Config struct {
	// DeviceID is the capture index (0) or a device path or URL
	DeviceID string
	Width    int
	Height   int
	// Torch is an optional illumination switch
	Torch codescanner.TorchSwitch
}

func (cfg *Config) applyDefaults() error {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "0"
	}
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("cvcam: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}
