package gstcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/framesource"
)

// track is the live video track of a running pipeline
type track struct {
	els       *pipelineElements
	slot      *framesource.Slot
	torch     codescanner.TorchSwitch
	sampleCtx *sampleContext

	mu      sync.Mutex // protects fps and torchOn
	fps     float64
	torchOn bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
	started  time.Time

	// Error telemetry (atomic)
	errorsByCategory [ErrCategoryUnknown + 1]uint64
}

func newTrack(els *pipelineElements, torch codescanner.TorchSwitch, fps float64) *track {
	slot := framesource.New()
	return &track{
		els:   els,
		slot:  slot,
		torch: torch,
		fps:   fps,
		sampleCtx: &sampleContext{
			slot:   slot,
			width:  els.Width,
			height: els.Height,
		},
		started: time.Now(),
	}
}

func (t *track) Kind() string { return "video" }

func (t *track) Frames() codescanner.FrameSource { return t.slot }

// Stop stops the monitor, switches the torch off and sets the pipeline to NULL.
// Idempotent.
func (t *track) Stop() error {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.wg.Wait()

		t.mu.Lock()
		torchOn := t.torchOn
		t.mu.Unlock()
		if torchOn {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := t.torch.SetTorch(ctx, false); err != nil {
				slog.Warn("gstcam: failed to switch torch off", "error", err)
			}
			cancel()
		}

		t.stopErr = destroyPipeline(t.els)

		var pipelineErrors uint64
		for c := range t.errorsByCategory {
			pipelineErrors += atomic.LoadUint64(&t.errorsByCategory[c])
		}
		slog.Info("gstcam: track stopped",
			"uptime", time.Since(t.started),
			"frames", atomic.LoadUint64(&t.sampleCtx.frameCount),
			"bytes_read", atomic.LoadUint64(&t.sampleCtx.bytesRead),
			"dropped", atomic.LoadUint64(&t.sampleCtx.framesDropped),
			"frames_unsampled", t.slot.Stats().Overwritten,
			"pipeline_errors", pipelineErrors,
		)
	})
	return t.stopErr
}

// ApplyConstraints updates torch and frame rate. Facing mode is ignored.
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
		t.mu.Lock()
		defer t.mu.Unlock()
		if c.FrameRate != t.fps {
			if err := updateFramerateCaps(t.els, c.FrameRate); err != nil {
				return fmt.Errorf("gstcam: update frame rate: %w", err)
			}
			t.fps = c.FrameRate
		}
	}
	return nil
}

func (t *track) setTorch(ctx context.Context, on bool) error {
	if err := t.torch.SetTorch(ctx, on); err != nil {
		return fmt.Errorf("gstcam: torch: %w", err)
	}
	t.mu.Lock()
	t.torchOn = on
	t.mu.Unlock()
	return nil
}

// startMonitor watches the bus of the running pipeline until Stop
func (t *track) startMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.monitor(ctx)
	}()
}

// monitor logs and counts bus errors. It returns on EOS, on the first error
// or when ctx is cancelled; the session notices the lack of frames.
func (t *track) monitor(ctx context.Context) {
	bus := t.els.Pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstcam: context cancelled, stopping pipeline monitor")
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstcam: end of stream received",
				"uptime", time.Since(t.started),
				"frames_processed", atomic.LoadUint64(&t.sampleCtx.frameCount),
			)
			return

		case gst.MessageError:
			pe := newPipelineError(msg.ParseError())
			atomic.AddUint64(&t.errorsByCategory[pe.Category], 1)
			slog.Error("gstcam: pipeline error",
				"error", pe.Message,
				"debug", pe.Debug,
				"category", pe.Category.String(),
				"uptime", time.Since(t.started),
				"frames_processed", atomic.LoadUint64(&t.sampleCtx.frameCount),
			)
			return
		}
	}
}

// sampleContext holds state needed by the appsink callback
type sampleContext struct {
	slot          *framesource.Slot
	width         int
	height        int
	frameCount    uint64 // atomic
	bytesRead     uint64 // atomic
	framesDropped uint64 // atomic, malformed buffers
}

// onNewSample is called by GStreamer when a frame reaches the appsink.
//
// The buffer is copied into a fresh RGBA image (GStreamer reuses buffers)
// and published to the slot. Bad samples are skipped, never fatal.
func onNewSample(sink *app.Sink, sc *sampleContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstcam: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	img, ok := rgbaFromBytes(mapInfo.Bytes(), sc.width, sc.height)
	buffer.Unmap()

	if !ok {
		atomic.AddUint64(&sc.framesDropped, 1)
		slog.Debug("gstcam: dropping short buffer", "width", sc.width, "height", sc.height)
		return gst.FlowOK
	}

	atomic.AddUint64(&sc.frameCount, 1)
	atomic.AddUint64(&sc.bytesRead, uint64(len(img.Pix)))
	sc.slot.Publish(img)
	return gst.FlowOK
}

// rgbaFromBytes copies a tightly packed RGBA buffer into an image.
// Returns ok=false when data is shorter than width*height*4.
func rgbaFromBytes(data []byte, width, height int) (*image.RGBA, bool) {
	size := width * height * 4
	if width <= 0 || height <= 0 || len(data) < size {
		return nil, false
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:size])
	return img, true
}
