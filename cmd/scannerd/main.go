package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/code-scanner/internal/config"
	"github.com/e7canasta/code-scanner/internal/daemon"
)

const defaultConfigPath = "config/scanner.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	backend := flag.String("backend", "", "Override camera backend: gstreamer, mediadevices, gocv")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting code-scanner daemon",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
		if err := config.Validate(cfg); err != nil {
			slog.Error("invalid -backend override", "backend", *backend, "error", err)
			os.Exit(1)
		}
	}

	slog.Info("scanner configuration loaded",
		"instance_id", cfg.InstanceID,
		"camera_backend", cfg.Camera.Backend,
		"sample_interval_ms", cfg.Scanner.SampleIntervalMS,
		"formats", cfg.Decoder.Formats,
		"torch", cfg.Torch.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("daemon error", "error", err)
		} else {
			slog.Info("daemon stopped (shutdown command or scanner exit)")
		}
	}

	shutdownTimeout := d.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := d.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("code-scanner daemon stopped successfully")
}
