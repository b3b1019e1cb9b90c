// Package gstcam is a GStreamer camera backend.
//
// It captures from a V4L2 device, an RTSP network camera or a test pattern,
// converts frames to RGBA in the pipeline and keeps only the latest frame.
package gstcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/framesource"
)

// SourceKind selects the GStreamer source element
type SourceKind string

const (
	// SourceV4L2 captures from a local video device (v4l2src)
	SourceV4L2 SourceKind = "v4l2"
	// SourceRTSP captures from a network camera (rtspsrc + decodebin)
	SourceRTSP SourceKind = "rtsp"
	// SourceTest produces a live test pattern (videotestsrc)
	SourceTest SourceKind = "test"
)

// Config configures the GStreamer camera
type Config struct {
	Source SourceKind
	// Device is the V4L2 device path (default /dev/video0)
	Device string
	// URL is the RTSP location, required for SourceRTSP
	URL string
	// Width and Height of delivered frames (default 1280x720)
	Width  int
	Height int
	// StartTimeout bounds one attempt to reach PLAYING (default 5s)
	StartTimeout time.Duration
	Retry        RetryConfig
	// Torch is an optional illumination switch
	Torch codescanner.TorchSwitch
}

// Camera implements codescanner.Camera on top of GStreamer
type Camera struct {
	cfg Config

	acquisitions uint64
	failures     uint64
}

// New creates a GStreamer camera with fail-fast validation.
//
// Returns an error if the configuration is invalid or GStreamer is not available.
func New(cfg Config) (*Camera, error) {
	if cfg.Source == "" {
		cfg.Source = SourceV4L2
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 5 * time.Second
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("gstcam: %w", err)
	}

	slog.Info("gstcam: camera created",
		"source", string(cfg.Source),
		"device", cfg.Device,
		"url", cfg.URL,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"torch", cfg.Torch != nil,
	)

	return &Camera{cfg: cfg}, nil
}

func (cfg Config) validate() error {
	switch cfg.Source {
	case SourceV4L2, SourceTest:
	case SourceRTSP:
		if cfg.URL == "" {
			return fmt.Errorf("gstcam: RTSP URL is required")
		}
	default:
		return fmt.Errorf("gstcam: unknown source %q", cfg.Source)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("gstcam: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.StartTimeout < 0 {
		return fmt.Errorf("gstcam: invalid start timeout %s", cfg.StartTimeout)
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.RetryDelay < 0 {
		return fmt.Errorf("gstcam: invalid retry config")
	}
	return nil
}

// Acquire builds and starts a pipeline, returning once it reaches PLAYING.
//
// Busy devices and network failures are retried with backoff. Facing mode is
// ignored (a pipeline is bound to one device). A torch request is forwarded to
// the configured switch; without one, a request to switch the torch on fails.
func (c *Camera) Acquire(ctx context.Context, cs codescanner.Constraints) (codescanner.Stream, error) {
	atomic.AddUint64(&c.acquisitions, 1)

	if cs.Torch != nil && *cs.Torch && c.cfg.Torch == nil {
		return nil, codescanner.ErrTorchUnsupported
	}

	pcfg := pipelineConfig{
		Source:    c.cfg.Source,
		Device:    c.cfg.Device,
		URL:       c.cfg.URL,
		Width:     c.cfg.Width,
		Height:    c.cfg.Height,
		FrameRate: cs.FrameRate,
	}

	var t *track
	err := runWithRetry(ctx, func(ctx context.Context) error {
		var err error
		t, err = c.start(ctx, pcfg)
		return err
	}, c.cfg.Retry)
	if err != nil {
		atomic.AddUint64(&c.failures, 1)
		return nil, err
	}

	if cs.Torch != nil && c.cfg.Torch != nil {
		if err := t.setTorch(ctx, *cs.Torch); err != nil {
			t.Stop()
			atomic.AddUint64(&c.failures, 1)
			return nil, err
		}
	}

	s := &stream{id: uuid.New().String(), video: t}
	slog.Info("gstcam: stream acquired",
		"stream_id", s.id,
		"source", string(c.cfg.Source),
		"frame_rate", cs.FrameRate,
	)
	return s, nil
}

// start runs one attempt: create, play, wait for PLAYING
func (c *Camera) start(ctx context.Context, pcfg pipelineConfig) (*track, error) {
	els, err := createPipeline(pcfg)
	if err != nil {
		return nil, fmt.Errorf("gstcam: %w", err)
	}

	t := newTrack(els, c.cfg.Torch, pcfg.FrameRate)
	els.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return onNewSample(sink, t.sampleCtx)
		},
	})

	if err := els.Pipeline.SetState(gst.StatePlaying); err != nil {
		destroyPipeline(els)
		return nil, fmt.Errorf("gstcam: failed to start pipeline: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()
	if err := waitPlaying(waitCtx, els.Pipeline); err != nil {
		destroyPipeline(els)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &PipelineError{Category: ErrCategoryNetwork, Message: "timed out waiting for PLAYING"}
		}
		return nil, err
	}

	slog.Info("gstcam: pipeline reached PLAYING state")
	t.startMonitor()
	return t, nil
}

// waitPlaying pops bus messages until the pipeline reaches PLAYING, posts an
// error or EOS, or ctx is done
func waitPlaying(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			pe := newPipelineError(msg.ParseError())
			slog.Warn("gstcam: pipeline failed to start",
				"error", pe.Message,
				"debug", pe.Debug,
				"category", pe.Category.String(),
			)
			return pe

		case gst.MessageEOS:
			return ErrEndOfStream

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}
}

// Stats contains camera counters
type Stats struct {
	Acquisitions uint64
	Failures     uint64
}

// Stats returns acquisition counters
func (c *Camera) Stats() Stats {
	return Stats{
		Acquisitions: atomic.LoadUint64(&c.acquisitions),
		Failures:     atomic.LoadUint64(&c.failures),
	}
}

// stream is one acquired pipeline exposed as a single video track
type stream struct {
	id    string
	video *track
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []codescanner.Track { return []codescanner.Track{s.video} }

func (s *stream) VideoTracks() []codescanner.VideoTrack {
	return []codescanner.VideoTrack{s.video}
}

var (
	_ codescanner.Camera      = (*Camera)(nil)
	_ codescanner.FrameSource = (*framesource.Slot)(nil)
)
