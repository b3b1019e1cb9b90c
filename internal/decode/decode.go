// Package decode adapts the gozxing engine to luma buffers.
//
// It is a call-shape adapter only: one detection pass per configured
// format, no retries, no post-processing of the engine result. With the
// default (QR only) that is a single engine call; each extra format adds
// one more reader, tried in order until one finds a symbol.
package decode

import (
	"fmt"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Format names a symbology the invoker can search for
type Format string

const (
	FormatQRCode     Format = "qr_code"
	FormatDataMatrix Format = "data_matrix"
	FormatAztec      Format = "aztec"
	FormatCode128    Format = "code_128"
	FormatEAN13      Format = "ean_13"
)

// DefaultFormats is used when Options.Formats is empty
var DefaultFormats = []Format{FormatQRCode}

// Options configures one detection call
type Options struct {
	// TryHarder enables the engine's exhaustive search
	TryHarder bool
	// PreFilter binarizes with local thresholding (HybridBinarizer) instead of
	// the global histogram
	PreFilter bool
	// Formats lists the symbologies to search, in order
	Formats []Format
}

// Result is the engine's verdict for a successful detection
type Result struct {
	Text     string
	Format   string
	RawBytes []byte
	Metadata map[string]string
}

// ParseFormats parses a comma separated list such as "qr_code,ean_13"
func ParseFormats(s string) ([]Format, error) {
	var formats []Format
	for _, part := range strings.Split(s, ",") {
		name := Format(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if _, err := newReader(name); err != nil {
			return nil, err
		}
		formats = append(formats, name)
	}
	return formats, nil
}

// Invoke runs one detection over a luma buffer of width x height.
//
// The first configured reader that does not report "not found" decides the
// result. Errors are the engine's own; use Classify to interpret them.
func Invoke(luma []byte, width, height int, opts Options) (*Result, error) {
	if width <= 0 || height <= 0 || len(luma) < width*height {
		return nil, fmt.Errorf("decode: %w: %d bytes for %dx%d", ErrBufferSize, len(luma), width, height)
	}

	src, err := gozxing.NewPlanarYUVLuminanceSource(luma, width, height, 0, 0, width, height, false)
	if err != nil {
		return nil, fmt.Errorf("decode: luminance source %dx%d (%d bytes): %w", width, height, len(luma), err)
	}

	var binarizer gozxing.Binarizer
	if opts.PreFilter {
		binarizer = gozxing.NewHybridBinarizer(src)
	} else {
		binarizer = gozxing.NewGlobalHistgramBinarizer(src)
	}

	bmp, err := gozxing.NewBinaryBitmap(binarizer)
	if err != nil {
		return nil, fmt.Errorf("decode: binary bitmap: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	var lastErr error
	for _, f := range formats {
		reader, err := newReader(f)
		if err != nil {
			return nil, err
		}

		res, err := reader.Decode(bmp, hints)
		if err == nil {
			return convert(res), nil
		}
		if Classify(err) != KindNotFound {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func newReader(f Format) (gozxing.Reader, error) {
	switch f {
	case FormatQRCode:
		return qrcode.NewQRCodeReader(), nil
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader(), nil
	case FormatAztec:
		return aztec.NewAztecReader(), nil
	case FormatCode128:
		return oned.NewCode128Reader(), nil
	case FormatEAN13:
		return oned.NewEAN13Reader(), nil
	default:
		return nil, fmt.Errorf("decode: unknown format %q", f)
	}
}

func convert(res *gozxing.Result) *Result {
	out := &Result{
		Text:     res.GetText(),
		Format:   res.GetBarcodeFormat().String(),
		RawBytes: res.GetRawBytes(),
	}
	if md := res.GetResultMetadata(); len(md) > 0 {
		out.Metadata = make(map[string]string, len(md))
		for k, v := range md {
			out.Metadata[k.String()] = fmt.Sprint(v)
		}
	}
	return out
}
