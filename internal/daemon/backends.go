package daemon

import (
	"fmt"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/config"
	"github.com/e7canasta/code-scanner/internal/cvcam"
	"github.com/e7canasta/code-scanner/internal/gstcam"
	"github.com/e7canasta/code-scanner/internal/mediacam"
)

// NewCamera builds the capture backend selected by cfg.Backend.
// torch may be nil.
func NewCamera(cfg config.CameraConfig, torch codescanner.TorchSwitch) (codescanner.Camera, error) {
	var (
		cam codescanner.Camera
		err error
	)

	switch cfg.Backend {
	case "", "gstreamer":
		cam, err = newGst(gstcam.Config{
			Source: gstcam.SourceKind(cfg.Source),
			Device: cfg.Device,
			URL:    cfg.URL,
			Width:  cfg.Width,
			Height: cfg.Height,
			Torch:  torch,
		})
	case "mediadevices":
		cam, err = newMedia(mediacam.Config{
			DeviceID: cfg.Device,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Torch:    torch,
		})
	case "gocv":
		cam, err = newCV(cvcam.Config{
			DeviceID: cfg.Device,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Torch:    torch,
		})
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("camera backend %s: %w", cfg.Backend, err)
	}
	return cam, nil
}

// the constructors return concrete pointers; these keep a nil result a nil interface

func newGst(cfg gstcam.Config) (codescanner.Camera, error) {
	c, err := gstcam.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newMedia(cfg mediacam.Config) (codescanner.Camera, error) {
	c, err := mediacam.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newCV(cfg cvcam.Config) (codescanner.Camera, error) {
	c, err := cvcam.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
