package gstcam

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineConfig contains configuration for GStreamer pipeline creation
type pipelineConfig struct {
	Source    SourceKind
	Device    string
	URL       string
	Width     int
	Height    int
	FrameRate float64
}

// pipelineElements holds references needed for constraint updates and cleanup
type pipelineElements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	CapsFilter *gst.Element
	Width      int
	Height     int
}

// createPipeline creates a GStreamer pipeline producing RGBA frames.
//
// Pipeline structure:
//
//	v4l2src | videotestsrc | rtspsrc → decodebin
//	  → videoconvert → videoscale → videorate → capsfilter(RGBA) → appsink
//
// The pipeline is configured but NOT started (state remains NULL).
func createPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Width, cfg.Height, cfg.FrameRate)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	tail := []*gst.Element{converter, scaler, videorate, capsfilter, appsink.Element}

	switch cfg.Source {
	case SourceV4L2, SourceTest:
		var src *gst.Element
		if cfg.Source == SourceV4L2 {
			src, err = gst.NewElement("v4l2src")
			if err != nil {
				return nil, fmt.Errorf("failed to create v4l2src: %w", err)
			}
			src.SetProperty("device", cfg.Device)
		} else {
			src, err = gst.NewElement("videotestsrc")
			if err != nil {
				return nil, fmt.Errorf("failed to create videotestsrc: %w", err)
			}
			src.SetProperty("is-live", true)
		}

		chain := append([]*gst.Element{src}, tail...)
		if err := pipeline.AddMany(chain...); err != nil {
			return nil, fmt.Errorf("failed to add elements: %w", err)
		}
		if err := gst.ElementLinkMany(chain...); err != nil {
			return nil, fmt.Errorf("failed to link %s pipeline: %w", cfg.Source, err)
		}

	case SourceRTSP:
		rtspsrc, err := gst.NewElement("rtspsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create rtspsrc: %w", err)
		}
		rtspsrc.SetProperty("location", cfg.URL)
		rtspsrc.SetProperty("protocols", 4) // TCP only
		rtspsrc.SetProperty("latency", 200)

		decodebin, err := gst.NewElement("decodebin")
		if err != nil {
			return nil, fmt.Errorf("failed to create decodebin: %w", err)
		}

		if err := pipeline.AddMany(append([]*gst.Element{rtspsrc, decodebin}, tail...)...); err != nil {
			return nil, fmt.Errorf("failed to add elements: %w", err)
		}
		if err := gst.ElementLinkMany(tail...); err != nil {
			return nil, fmt.Errorf("failed to link rtsp pipeline: %w", err)
		}

		// Both rtspsrc and decodebin expose pads only once the stream is known
		rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
			onPadAdded(srcPad, decodebin, "")
		})
		decodebin.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
			onPadAdded(srcPad, converter, "video/")
		})

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	slog.Debug("gstcam: pipeline created",
		"source", string(cfg.Source),
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"frame_rate", cfg.FrameRate,
	)

	return &pipelineElements{
		Pipeline:   pipeline,
		AppSink:    appsink,
		CapsFilter: capsfilter,
		Width:      cfg.Width,
		Height:     cfg.Height,
	}, nil
}

// onPadAdded links a dynamic source pad to the sink pad of sinkElement.
// Pads whose caps do not start with capsPrefix are ignored (audio branches).
func onPadAdded(srcPad *gst.Pad, sinkElement *gst.Element, capsPrefix string) {
	if capsPrefix != "" {
		caps := srcPad.GetCurrentCaps()
		if caps == nil || !strings.HasPrefix(caps.String(), capsPrefix) {
			slog.Debug("gstcam: ignoring pad", "pad", srcPad.GetName())
			return
		}
	}

	sinkPad := sinkElement.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstcam: failed to get sink pad", "element", sinkElement.GetName())
		return
	}
	if sinkPad.IsLinked() {
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstcam: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("gstcam: pads linked", "src_pad", srcPad.GetName(), "sink_pad", sinkPad.GetName())
}

// updateFramerateCaps swaps the capsfilter caps for a new frame rate
func updateFramerateCaps(els *pipelineElements, fps float64) error {
	if els == nil || els.CapsFilter == nil {
		return fmt.Errorf("capsfilter is nil")
	}
	return els.CapsFilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(els.Width, els.Height, fps)))
}

// destroyPipeline sets the pipeline to NULL, releasing the device.
// Safe to call with nil elements.
func destroyPipeline(els *pipelineElements) error {
	if els == nil || els.Pipeline == nil {
		return nil
	}
	if err := els.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps builds the appsink caps string.
//
// Handles fractional framerates:
//   - fps >= 1.0: framerate = fps/1 (e.g., 20.0 → 20/1)
//   - 0 < fps < 1.0: framerate = 1/(1/fps) (e.g., 0.5 → 1/2)
//   - fps <= 0: no framerate field
func buildCaps(width, height int, fps float64) string {
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", width, height)
	if fps <= 0 {
		return caps
	}

	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf("%s,framerate=%d/%d", caps, numerator, denominator)
}

// checkGStreamerAvailable verifies GStreamer can create elements
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
