// Package daemon wires the scanner, its camera backend and its outer
// surfaces (MQTT, HTTP, telemetry) into one service.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/config"
	"github.com/e7canasta/code-scanner/internal/control"
	"github.com/e7canasta/code-scanner/internal/emitter"
	"github.com/e7canasta/code-scanner/internal/gstcam"
	"github.com/e7canasta/code-scanner/internal/httpapi"
	"github.com/e7canasta/code-scanner/internal/telemetry"
	"github.com/e7canasta/code-scanner/internal/torch"
)

// Daemon is the main service orchestrator
type Daemon struct {
	cfg *config.Config

	torch             *torch.GPIO
	camera            codescanner.Camera
	scanner           *codescanner.Scanner
	emitter           *emitter.MQTTEmitter
	controlHandler    *control.Handler
	http              *httpapi.Server
	telemetryShutdown func(context.Context) error

	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	started   time.Time
	cancelCtx context.CancelFunc
}

// New builds every component from cfg.
//
// Returns an error if the camera backend, torch line, decoder or telemetry
// exporter cannot be created.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{cfg: cfg}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	d.telemetryShutdown = shutdown
	meter := otel.Meter(telemetry.MeterName)

	var torchSwitch codescanner.TorchSwitch
	if cfg.Torch.Enabled {
		g, err := torch.NewGPIO(torch.Config{
			Chip:      cfg.Torch.Chip,
			Line:      cfg.Torch.Line,
			ActiveLow: cfg.Torch.ActiveLow,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open torch: %w", err)
		}
		d.torch = g
		torchSwitch = g
	}

	camera, err := NewCamera(cfg.Camera, torchSwitch)
	if err != nil {
		d.closeTorch()
		return nil, err
	}
	d.camera = camera

	dec, err := codescanner.NewDecoder(cfg.ToDecoderConfig())
	if err != nil {
		d.closeTorch()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	dec, err = telemetry.InstrumentDecoder(meter, dec)
	if err != nil {
		d.closeTorch()
		return nil, err
	}

	metricsHost, err := telemetry.NewHost(meter)
	if err != nil {
		d.closeTorch()
		return nil, err
	}

	hosts := codescanner.Hosts{logHost(), metricsHost}

	if cfg.MQTT.Broker != "" {
		em, err := emitter.NewMQTTEmitter(cfg)
		if err != nil {
			d.closeTorch()
			return nil, err
		}
		d.emitter = em
		hosts = append(hosts, em)
	}

	scanner, err := codescanner.New(cfg.ToScannerConfig(), camera, hosts, codescanner.WithDecoder(dec))
	if err != nil {
		d.closeTorch()
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	d.scanner = scanner

	if !cfg.HTTP.Disabled {
		d.http = httpapi.New(cfg.HTTP.Addr, scanner)
	}

	slog.Info("daemon: configured",
		"instance_id", cfg.InstanceID,
		"backend", cfg.Camera.Backend,
		"torch", cfg.Torch.Enabled,
		"mqtt", cfg.MQTT.Broker != "",
		"http", !cfg.HTTP.Disabled,
		"telemetry", cfg.Telemetry.Endpoint != "",
	)
	return d, nil
}

// Run starts every component and blocks until ctx is cancelled, a
// component fails, or a shutdown command arrives.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.isRunning = true
	d.started = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	d.cancelCtx = cancel
	d.mu.Unlock()
	defer cancel()

	errCh := make(chan error, 3)
	d.spawn(func() {
		if err := d.scanner.Run(ctx); err != nil {
			errCh <- fmt.Errorf("scanner: %w", err)
		}
	})

	if d.emitter != nil {
		if err := d.emitter.Connect(ctx); err != nil {
			return err
		}
		d.spawn(func() { _ = d.emitter.Run(ctx) })

		d.controlHandler = control.NewHandler(d.cfg, d.emitter.Client, d.callbacks())
		if err := d.controlHandler.Start(ctx); err != nil {
			return err
		}
	}

	if d.http != nil {
		d.spawn(func() {
			if err := d.http.Run(ctx); err != nil {
				errCh <- err
			}
		})
	}

	slog.Info("daemon: running", "instance_id", d.cfg.InstanceID)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (d *Daemon) spawn(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Daemon) callbacks() control.CommandCallbacks {
	return control.CommandCallbacks{
		OnStart:            d.scanner.Start,
		OnClose:            d.scanner.Close,
		OnToggleFlashlight: d.scanner.ToggleFlashlight,
		OnGetStatus:        d.scanner.Status,
		OnShutdown: func() error {
			d.mu.RLock()
			cancel := d.cancelCtx
			d.mu.RUnlock()
			if cancel != nil {
				cancel()
			}
			return nil
		},
	}
}

// Shutdown stops every component, waiting for goroutines up to ctx's deadline
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.cancelCtx != nil {
		d.cancelCtx()
	}
	d.mu.Unlock()

	if d.controlHandler != nil {
		d.controlHandler.Stop()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
	case <-ctx.Done():
		shutdownErr = fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	if d.emitter != nil {
		stats := d.emitter.Stats()
		slog.Info("daemon: emitter stats",
			"published", stats.Published,
			"dropped", stats.Dropped,
			"errors", stats.Errors,
		)
		d.emitter.Disconnect()
	}

	d.closeTorch()

	if gc, ok := d.camera.(*gstcam.Camera); ok {
		cs := gc.Stats()
		slog.Info("daemon: camera stats", "acquisitions", cs.Acquisitions, "failures", cs.Failures)
	}

	if d.telemetryShutdown != nil {
		if err := d.telemetryShutdown(ctx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	d.mu.Lock()
	d.isRunning = false
	uptime := time.Since(d.started)
	d.mu.Unlock()

	st := d.scanner.Stats()
	slog.Info("daemon: stopped",
		"uptime", uptime.Round(time.Second),
		"sessions", st.SessionsStarted,
		"scans", st.Scans,
		"errors", st.Errors,
	)
	return shutdownErr
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (d *Daemon) ShutdownTimeout() time.Duration {
	return d.cfg.ShutdownTimeout()
}

func (d *Daemon) closeTorch() {
	if d.torch == nil {
		return
	}
	if err := d.torch.Close(); err != nil {
		slog.Warn("daemon: failed to release torch", "error", err)
	}
	d.torch = nil
}

// logHost logs every session event
func logHost() codescanner.Host {
	return codescanner.HostFuncs{
		Scanned: func(id string, o codescanner.Outcome) {
			slog.Info("daemon: code scanned",
				"session_id", id,
				"format", o.Format,
				"text", o.Text,
			)
		},
		Error: func(id string, err *codescanner.Error) {
			slog.Warn("daemon: session error", "session_id", id, "kind", err.Kind.String(), "error", err)
		},
		Closed: func(id string) {
			slog.Info("daemon: session closed", "session_id", id)
		},
	}
}
