//go:build gocv

package cvcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/framesource"
)

// Camera implements codescanner.Camera with gocv.VideoCapture
type Camera struct {
	cfg Config
}

// New creates an OpenCV camera.
//
// Returns an error if the configured size is invalid.
func New(cfg Config) (*Camera, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	slog.Info("cvcam: camera created",
		"device_id", cfg.DeviceID,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	)
	return &Camera{cfg: cfg}, nil
}

// Acquire opens the capture device and starts the read loop.
// Facing mode is ignored; the device is fixed by configuration.
func (c *Camera) Acquire(ctx context.Context, cs codescanner.Constraints) (codescanner.Stream, error) {
	if cs.Torch != nil && *cs.Torch && c.cfg.Torch == nil {
		return nil, codescanner.ErrTorchUnsupported
	}

	type result struct {
		vc  *gocv.VideoCapture
		err error
	}
	resC := make(chan result, 1)
	go func() {
		vc, err := gocv.OpenVideoCapture(c.cfg.DeviceID)
		resC <- result{vc, err}
	}()

	var vc *gocv.VideoCapture
	select {
	case r := <-resC:
		if r.err != nil {
			return nil, fmt.Errorf("cvcam: open %s: %w", c.cfg.DeviceID, r.err)
		}
		vc = r.vc
	case <-ctx.Done():
		go func() {
			if r := <-resC; r.err == nil {
				r.vc.Close()
			}
		}()
		return nil, ctx.Err()
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	if cs.FrameRate > 0 {
		vc.Set(gocv.VideoCaptureFPS, cs.FrameRate)
	}

	t := &track{
		vc:    vc,
		slot:  framesource.New(),
		torch: c.cfg.Torch,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if cs.Torch != nil && c.cfg.Torch != nil {
		if err := t.setTorch(ctx, *cs.Torch); err != nil {
			vc.Close()
			return nil, err
		}
	}

	t.started = time.Now()
	go t.readLoop()

	s := &stream{id: uuid.New().String(), video: t}
	slog.Info("cvcam: stream acquired", "stream_id", s.id, "device_id", c.cfg.DeviceID)
	return s, nil
}

type stream struct {
	id    string
	video *track
}

func (s *stream) ID() string                  { return s.id }
func (s *stream) Tracks() []codescanner.Track { return []codescanner.Track{s.video} }
func (s *stream) VideoTracks() []codescanner.VideoTrack {
	return []codescanner.VideoTrack{s.video}
}

type track struct {
	vc    *gocv.VideoCapture
	slot  *framesource.Slot
	torch codescanner.TorchSwitch

	torchOn atomic.Bool
	quit    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
	frames   uint64 // atomic
	started  time.Time
}

func (t *track) Kind() string                    { return "video" }
func (t *track) Frames() codescanner.FrameSource { return t.slot }

// readLoop reads frames until Stop, reusing one Mat
func (t *track) readLoop() {
	defer close(t.done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-t.quit:
			return
		default:
		}

		if ok := t.vc.Read(&mat); !ok {
			slog.Warn("cvcam: read failed, device closed")
			return
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			slog.Debug("cvcam: frame conversion failed", "error", err)
			continue
		}
		t.slot.Publish(toRGBA(img))
		atomic.AddUint64(&t.frames, 1)
	}
}

// Stop ends the read loop and releases the device. Idempotent.
func (t *track) Stop() error {
	t.stopOnce.Do(func() {
		close(t.quit)
		<-t.done
		t.stopErr = t.vc.Close()

		if t.torchOn.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := t.torch.SetTorch(ctx, false); err != nil {
				slog.Warn("cvcam: failed to switch torch off", "error", err)
			}
			cancel()
		}

		fs := t.slot.Stats()
		slog.Info("cvcam: track stopped",
			"uptime", time.Since(t.started),
			"frames", atomic.LoadUint64(&t.frames),
			"frames_unsampled", fs.Overwritten,
		)
	})
	return t.stopErr
}

// ApplyConstraints handles torch and frame rate changes
func (t *track) ApplyConstraints(ctx context.Context, c codescanner.Constraints) error {
	if c.Torch != nil {
		if t.torch == nil {
			return codescanner.ErrTorchUnsupported
		}
		if err := t.setTorch(ctx, *c.Torch); err != nil {
			return err
		}
	}
	if c.FrameRate > 0 {
		t.vc.Set(gocv.VideoCaptureFPS, c.FrameRate)
	}
	return nil
}

func (t *track) setTorch(ctx context.Context, on bool) error {
	if err := t.torch.SetTorch(ctx, on); err != nil {
		return fmt.Errorf("cvcam: torch: %w", err)
	}
	t.torchOn.Store(on)
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

var _ codescanner.Camera = (*Camera)(nil)
