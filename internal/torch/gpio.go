// Package torch drives an illumination LED wired to a GPIO line.
package torch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"github.com/warthog618/go-gpiocdev/device/rpi"
)

// outputLine is the part of *gpiocdev.Line the switch uses
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// Config selects the GPIO line of the LED
type Config struct {
	// Chip is the gpiochip name (default "gpiochip0")
	Chip string
	// Line is a line offset ("17") or a Raspberry Pi pin name ("GPIO17", "J8p11")
	Line string
	// ActiveLow inverts the electrical level
	ActiveLow bool
}

// GPIO is a torch switch on a single output line.
//
// Thread-safety: SetTorch and Close are safe for concurrent use.
type GPIO struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	line   outputLine
	offset int
	on     bool
}

// NewGPIO requests the line as an output, initially off.
//
// Returns an error if the line name is invalid or the line cannot be requested.
func NewGPIO(cfg Config) (*GPIO, error) {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}

	offset, err := ParseLine(cfg.Line)
	if err != nil {
		return nil, err
	}

	c, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("torch: failed to open chip %s: %w", cfg.Chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("code-scanner-torch")}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	l, err := c.RequestLine(offset, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("torch: failed to request line %d: %w", offset, err)
	}

	slog.Info("torch: gpio line ready", "chip", cfg.Chip, "offset", offset, "active_low", cfg.ActiveLow)
	return &GPIO{chip: c, line: l, offset: offset}, nil
}

// ParseLine converts a line offset or a Raspberry Pi pin name to an offset
func ParseLine(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("torch: line is required")
	}
	offset, err := rpi.Pin(name)
	if err != nil {
		return 0, fmt.Errorf("torch: invalid line %q: %w", name, err)
	}
	return offset, nil
}

// SetTorch drives the line high (on) or low (off)
func (g *GPIO) SetTorch(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.line == nil {
		return fmt.Errorf("torch: line %d closed", g.offset)
	}

	v := 0
	if on {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return fmt.Errorf("torch: set line %d: %w", g.offset, err)
	}
	g.on = on

	slog.Debug("torch: switched", "offset", g.offset, "on", on)
	return nil
}

// On reports the last value written
func (g *GPIO) On() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.on
}

// Close switches the LED off and releases the line and chip
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.line == nil {
		return nil
	}

	g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		g.chip.Close()
		g.chip = nil
	}
	return err
}
