package codescanner

import (
	"context"
	"fmt"
	"time"

	"github.com/e7canasta/code-scanner/internal/decode"
)

// DecoderConfig configures the built-in gozxing decoder
type DecoderConfig struct {
	// TryHarder enables the engine's slower, exhaustive search
	TryHarder bool
	// PreFilter runs local-threshold binarization before symbol search
	PreFilter bool
	// Formats lists symbologies to search ("qr_code", "data_matrix", "aztec",
	// "code_128", "ean_13"). Empty means QR only.
	Formats []string
}

type zxingDecoder struct {
	opts decode.Options
}

// NewDecoder returns the built-in decoder.
//
// Returns an error if a format name is unknown.
func NewDecoder(cfg DecoderConfig) (Decoder, error) {
	opts := decode.Options{
		TryHarder: cfg.TryHarder,
		PreFilter: cfg.PreFilter,
	}
	for _, name := range cfg.Formats {
		formats, err := decode.ParseFormats(name)
		if err != nil {
			return nil, fmt.Errorf("scanner: %w", err)
		}
		opts.Formats = append(opts.Formats, formats...)
	}
	return &zxingDecoder{opts: opts}, nil
}

func (d *zxingDecoder) Decode(ctx context.Context, luma []byte, width, height int) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, NewError(KindDecodeEngineError, err)
	}

	res, err := decode.Invoke(luma, width, height, d.opts)
	if err != nil {
		switch decode.Classify(err) {
		case decode.KindNotFound:
			return Outcome{}, NewError(KindDecodeNotFound, err)
		case decode.KindMalformed:
			return Outcome{}, NewError(KindDecodeMalformed, err)
		default:
			return Outcome{}, NewError(KindDecodeEngineError, err)
		}
	}

	return Outcome{
		Text:      res.Text,
		Format:    res.Format,
		RawBytes:  res.RawBytes,
		Metadata:  res.Metadata,
		Width:     width,
		Height:    height,
		DecodedAt: time.Now(),
	}, nil
}
