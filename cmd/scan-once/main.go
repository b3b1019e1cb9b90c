package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/config"
	"github.com/e7canasta/code-scanner/internal/daemon"
)

const version = "v0.1.0"

type result struct {
	outcome *codescanner.Outcome
	err     *codescanner.Error
}

func main() {
	backend := flag.String("backend", "gstreamer", "Camera backend: gstreamer, mediadevices, gocv")
	source := flag.String("source", "v4l2", "GStreamer source: v4l2, rtsp, test")
	device := flag.String("device", "", "Device path, index or id (backend default if empty)")
	url := flag.String("url", "", "RTSP stream URL (rtsp source only)")
	interval := flag.Duration("interval", 500*time.Millisecond, "Frame sampling interval")
	timeout := flag.Duration("timeout", 30*time.Second, "Give up after this long")
	tryHarder := flag.Bool("try-harder", false, "Enable exhaustive symbol search")
	prefilter := flag.Bool("prefilter", false, "Binarize with a local threshold before search")
	formats := flag.String("formats", "qr_code", "Comma-separated symbologies")
	flashlight := flag.Bool("flashlight", false, "Switch the torch on once streaming")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scan-once %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelWarn
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cameraCfg := config.CameraConfig{
		Backend: *backend,
		Source:  *source,
		Device:  *device,
		URL:     *url,
	}
	cfg := &config.Config{InstanceID: "scan-once", Camera: cameraCfg}
	cfg.Scanner.SampleIntervalMS = int(interval.Milliseconds())
	cfg.Decoder = config.DecoderConfig{TryHarder: *tryHarder, PreFilter: *prefilter}
	for _, f := range strings.Split(*formats, ",") {
		if f = strings.TrimSpace(f); f != "" {
			cfg.Decoder.Formats = append(cfg.Decoder.Formats, f)
		}
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	camera, err := daemon.NewCamera(cfg.Camera, nil)
	if err != nil {
		log.Fatalf("Failed to create camera: %v", err)
	}

	dec, err := codescanner.NewDecoder(cfg.ToDecoderConfig())
	if err != nil {
		log.Fatalf("Failed to create decoder: %v", err)
	}

	results := make(chan result, 2)
	host := codescanner.HostFuncs{
		Scanned: func(_ string, o codescanner.Outcome) {
			results <- result{outcome: &o}
		},
		Error: func(_ string, e *codescanner.Error) {
			if e.Kind.Terminal() {
				results <- result{err: e}
			} else {
				slog.Warn("scan-once: non-terminal error", "error", e)
			}
		},
	}

	scanner, err := codescanner.New(cfg.ToScannerConfig(), camera, host, codescanner.WithDecoder(dec))
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = scanner.Run(ctx)
	}()

	fmt.Fprintf(os.Stderr, "Scanning with %s (timeout %s)...\n", *backend, *timeout)

	if err := startWhenRunning(ctx, scanner); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if *flashlight {
		go enableTorch(ctx, scanner)
	}

	exitCode := 0
	select {
	case r := <-results:
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "Scan failed: %v\n", r.err)
			exitCode = 1
		} else {
			fmt.Println(r.outcome.Text)
			slog.Info("scan-once: decoded",
				"format", r.outcome.Format,
				"frame", fmt.Sprintf("%dx%d", r.outcome.Width, r.outcome.Height),
			)
		}
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "No code found: %v\n", ctx.Err())
		exitCode = 1
	}

	st := scanner.Stats()
	slog.Info("scan-once: stats",
		"decode_attempts", st.DecodeAttempts,
		"not_found", st.DecodeNotFound,
		"ticks_skipped", st.TicksSkipped,
	)

	cancel()
	<-runDone
	os.Exit(exitCode)
}

// startWhenRunning retries Start until the driver goroutine is up
func startWhenRunning(ctx context.Context, s *codescanner.Scanner) error {
	for {
		err := s.Start(ctx)
		if !errors.Is(err, codescanner.ErrNotRunning) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// enableTorch waits for the streaming phase and switches the torch on once
func enableTorch(ctx context.Context, s *codescanner.Scanner) {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		switch s.Phase() {
		case codescanner.PhaseStreaming:
			if err := s.ToggleFlashlight(ctx); err != nil {
				slog.Warn("scan-once: flashlight failed", "error", err)
			}
			return
		case codescanner.PhaseClosed:
			return
		}
	}
}
