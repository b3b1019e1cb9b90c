// Package mediacam is a camera backend built on pion/mediadevices, the Go
// rendition of the browser getUserMedia model.
package mediacam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/image/draw"

	// Registers the V4L2 / AVFoundation camera drivers
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/framesource"
)

// Config configures the mediadevices camera
type Config struct {
	// DeviceID pins a device; empty selects by facing mode, then first available
	DeviceID string
	// Width and Height are the preferred capture size (default 1280x720)
	Width  int
	Height int
	// Torch is an optional illumination switch
	Torch codescanner.TorchSwitch
}

// Camera implements codescanner.Camera with mediadevices.GetUserMedia
type Camera struct {
	cfg Config

	// getUserMedia and enumerate are replaced in tests
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
	enumerate    func() []mediadevices.MediaDeviceInfo
}

// New creates a mediadevices camera.
//
// Returns an error if the configured size is invalid.
func New(cfg Config) (*Camera, error) {
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("mediacam: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}

	slog.Info("mediacam: camera created",
		"device_id", cfg.DeviceID,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"torch", cfg.Torch != nil,
	)

	return &Camera{
		cfg:          cfg,
		getUserMedia: mediadevices.GetUserMedia,
		enumerate:    mediadevices.EnumerateDevices,
	}, nil
}

// Acquire requests a video stream and starts pumping frames.
//
// GetUserMedia does not take a context; when ctx ends first, Acquire returns
// ctx.Err() and the late stream is closed as soon as it arrives.
func (c *Camera) Acquire(ctx context.Context, cs codescanner.Constraints) (codescanner.Stream, error) {
	if cs.Torch != nil && *cs.Torch && c.cfg.Torch == nil {
		return nil, codescanner.ErrTorchUnsupported
	}

	deviceID := pickDevice(c.enumerate(), c.cfg.DeviceID, cs.FacingMode)

	constraints := mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			mc.Width = prop.Int(c.cfg.Width)
			mc.Height = prop.Int(c.cfg.Height)
			if cs.FrameRate > 0 {
				mc.FrameRate = prop.Float(cs.FrameRate)
			}
			if deviceID != "" {
				mc.DeviceID = prop.String(deviceID)
			}
		},
	}

	type result struct {
		ms  mediadevices.MediaStream
		err error
	}
	resC := make(chan result, 1)
	go func() {
		ms, err := c.getUserMedia(constraints)
		resC <- result{ms, err}
	}()

	var ms mediadevices.MediaStream
	select {
	case r := <-resC:
		if r.err != nil {
			return nil, fmt.Errorf("mediacam: getUserMedia: %w", r.err)
		}
		ms = r.ms
	case <-ctx.Done():
		go func() {
			if r := <-resC; r.err == nil {
				closeAll(r.ms)
			}
		}()
		return nil, ctx.Err()
	}

	s := &stream{id: uuid.New().String()}
	for _, tr := range ms.GetVideoTracks() {
		vt, ok := tr.(*mediadevices.VideoTrack)
		if !ok {
			s.others = append(s.others, &otherTrack{tr: tr})
			continue
		}
		s.video = append(s.video, newTrack(vt, c.cfg.Torch))
	}
	for _, tr := range ms.GetAudioTracks() {
		s.others = append(s.others, &otherTrack{tr: tr, kind: "audio"})
	}

	if cs.Torch != nil && c.cfg.Torch != nil && len(s.video) > 0 {
		if err := s.video[0].setTorch(ctx, *cs.Torch); err != nil {
			s.stopAll()
			return nil, err
		}
	}

	for _, t := range s.video {
		t.start()
	}

	slog.Info("mediacam: stream acquired",
		"stream_id", s.id,
		"device_id", deviceID,
		"video_tracks", len(s.video),
	)
	return s, nil
}

// pickDevice returns the pinned device, or the first video input whose label
// suggests the requested facing mode, or "" to let the platform choose.
func pickDevice(devices []mediadevices.MediaDeviceInfo, pinned string, facing codescanner.FacingMode) string {
	if pinned != "" {
		return pinned
	}

	var hints []string
	switch facing {
	case codescanner.FacingEnvironment:
		hints = []string{"back", "rear", "environment", "world"}
	case codescanner.FacingUser:
		hints = []string{"front", "user", "face", "integrated"}
	}

	for _, d := range devices {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		label := strings.ToLower(d.Label)
		for _, h := range hints {
			if strings.Contains(label, h) {
				return d.DeviceID
			}
		}
	}
	return ""
}

func closeAll(ms mediadevices.MediaStream) {
	for _, tr := range ms.GetTracks() {
		tr.Close()
	}
}

type stream struct {
	id     string
	video  []*track
	others []*otherTrack
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []codescanner.Track {
	out := make([]codescanner.Track, 0, len(s.video)+len(s.others))
	for _, t := range s.video {
		out = append(out, t)
	}
	for _, t := range s.others {
		out = append(out, t)
	}
	return out
}

func (s *stream) VideoTracks() []codescanner.VideoTrack {
	out := make([]codescanner.VideoTrack, 0, len(s.video))
	for _, t := range s.video {
		out = append(out, t)
	}
	return out
}

func (s *stream) stopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// otherTrack is a non-video track; only Stop is meaningful
type otherTrack struct {
	tr   mediadevices.Track
	kind string
}

func (t *otherTrack) Kind() string {
	if t.kind == "" {
		return "video"
	}
	return t.kind
}

func (t *otherTrack) Stop() error { return t.tr.Close() }

// track pumps frames from a mediadevices video track into a slot
type track struct {
	vt    *mediadevices.VideoTrack
	slot  *framesource.Slot
	torch codescanner.TorchSwitch

	torchOn atomic.Bool
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error

	frames  uint64 // atomic
	started time.Time
}

func newTrack(vt *mediadevices.VideoTrack, torch codescanner.TorchSwitch) *track {
	return &track{
		vt:    vt,
		slot:  framesource.New(),
		torch: torch,
		done:  make(chan struct{}),
	}
}

func (t *track) Kind() string { return "video" }

func (t *track) Frames() codescanner.FrameSource { return t.slot }

func (t *track) start() {
	t.started = time.Now()
	go t.pump()
}

// pump reads raw frames until the track is closed
func (t *track) pump() {
	defer close(t.done)

	reader := t.vt.NewReader(false)
	for {
		img, release, err := reader.Read()
		if err != nil {
			slog.Debug("mediacam: reader stopped", "error", err)
			return
		}
		t.slot.Publish(copyFrame(img))
		release()
		atomic.AddUint64(&t.frames, 1)
	}
}

// Stop closes the track and waits for the pump to exit. Idempotent.
func (t *track) Stop() error {
	t.stopOnce.Do(func() {
		t.stopErr = t.vt.Close()

		if !t.started.IsZero() {
			select {
			case <-t.done:
			case <-time.After(2 * time.Second):
				slog.Warn("mediacam: frame pump did not exit")
			}
		}

		if t.torchOn.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := t.torch.SetTorch(ctx, false); err != nil {
				slog.Warn("mediacam: failed to switch torch off", "error", err)
			}
			cancel()
		}

		fs := t.slot.Stats()
		slog.Info("mediacam: track stopped",
			"uptime", time.Since(t.started),
			"frames", atomic.LoadUint64(&t.frames),
			"frames_unsampled", fs.Overwritten,
		)
	})
	return t.stopErr
}

// ApplyConstraints handles torch changes. mediadevices cannot renegotiate a
// running track, so facing mode and frame rate are kept from acquisition.
func (t *track) ApplyConstraints(ctx context.Context, c codescanner.Constraints) error {
	if c.Torch == nil {
		return nil
	}
	if t.torch == nil {
		return codescanner.ErrTorchUnsupported
	}
	return t.setTorch(ctx, *c.Torch)
}

func (t *track) setTorch(ctx context.Context, on bool) error {
	if err := t.torch.SetTorch(ctx, on); err != nil {
		return fmt.Errorf("mediacam: torch: %w", err)
	}
	t.torchOn.Store(on)
	return nil
}

// copyFrame copies img into an RGBA image that outlives the reader's release
func copyFrame(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

var _ codescanner.Camera = (*Camera)(nil)
