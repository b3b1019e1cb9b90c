package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	codescanner "github.com/e7canasta/code-scanner"
)

// Host counts session events. It implements codescanner.Host.
type Host struct {
	scans  metric.Int64Counter
	errors metric.Int64Counter
	closes metric.Int64Counter
}

// NewHost creates the session event counters on meter
func NewHost(meter metric.Meter) (*Host, error) {
	scans, err := meter.Int64Counter("scanner.scans",
		metric.WithDescription("Symbols decoded"),
		metric.WithUnit("{scans}"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: scans counter: %w", err)
	}

	errs, err := meter.Int64Counter("scanner.errors",
		metric.WithDescription("Errors reported to the host, by kind"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: errors counter: %w", err)
	}

	closes, err := meter.Int64Counter("scanner.sessions.closed",
		metric.WithDescription("Sessions ended"),
		metric.WithUnit("{sessions}"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: sessions counter: %w", err)
	}

	return &Host{scans: scans, errors: errs, closes: closes}, nil
}

func (h *Host) OnScanned(_ string, o codescanner.Outcome) {
	h.scans.Add(context.Background(), 1, metric.WithAttributes(attribute.String("format", o.Format)))
}

func (h *Host) OnError(_ string, err *codescanner.Error) {
	kind := "unknown"
	if err != nil {
		kind = err.Kind.String()
	}
	h.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (h *Host) OnClosed(string) {
	h.closes.Add(context.Background(), 1)
}

type instrumentedDecoder struct {
	next     codescanner.Decoder
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
}

// InstrumentDecoder wraps dec, recording every attempt by outcome and its latency
func InstrumentDecoder(meter metric.Meter, dec codescanner.Decoder) (codescanner.Decoder, error) {
	attempts, err := meter.Int64Counter("scanner.decode.attempts",
		metric.WithDescription("Decode attempts, by outcome"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: attempts counter: %w", err)
	}

	latency, err := meter.Float64Histogram("scanner.decode.duration",
		metric.WithDescription("Decode attempt duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: latency histogram: %w", err)
	}

	return &instrumentedDecoder{next: dec, attempts: attempts, latency: latency}, nil
}

func (d *instrumentedDecoder) Decode(ctx context.Context, luma []byte, width, height int) (codescanner.Outcome, error) {
	start := time.Now()
	out, err := d.next.Decode(ctx, luma, width, height)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	outcome := "found"
	if err != nil {
		outcome = codescanner.KindOf(err).String()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	d.attempts.Add(ctx, 1, attrs)
	d.latency.Record(ctx, elapsed, attrs)
	return out, err
}
