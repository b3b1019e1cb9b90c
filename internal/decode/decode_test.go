package decode

import (
	"errors"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// encodeQR renders contents as a QR code luma buffer (black modules = 0, white = 255)
func encodeQR(t *testing.T, contents string, size int) []byte {
	t.Helper()

	matrix, err := qrcode.NewQRCodeWriter().Encode(contents, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	if w != size || h != size {
		t.Fatalf("matrix is %dx%d, want %dx%d", w, h, size, size)
	}

	luma := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				luma[y*w+x] = 0
			} else {
				luma[y*w+x] = 255
			}
		}
	}
	return luma
}

func TestInvoke_DecodesQRCode(t *testing.T) {
	const size = 240
	luma := encodeQR(t, "scanner:test:42", size)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "unfiltered", opts: Options{}},
		{name: "prefilter", opts: Options{PreFilter: true}},
		{name: "try harder", opts: Options{TryHarder: true}},
		{name: "both", opts: Options{TryHarder: true, PreFilter: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Invoke(luma, size, size, tt.opts)
			if err != nil {
				t.Fatalf("Invoke() failed: %v", err)
			}
			if res.Text != "scanner:test:42" {
				t.Errorf("Text = %q, want %q", res.Text, "scanner:test:42")
			}
			if res.Format != "QR_CODE" {
				t.Errorf("Format = %q, want QR_CODE", res.Format)
			}
		})
	}
}

func TestInvoke_BlankFrameIsNotFound(t *testing.T) {
	const w, h = 120, 90
	luma := make([]byte, w*h)
	for i := range luma {
		luma[i] = 255
	}

	for _, prefilter := range []bool{false, true} {
		_, err := Invoke(luma, w, h, Options{PreFilter: prefilter})
		if err == nil {
			t.Fatalf("prefilter=%t: expected error on blank frame", prefilter)
		}
		if got := Classify(err); got != KindNotFound {
			t.Errorf("prefilter=%t: Classify() = %s, want not_found (err: %v)", prefilter, got, err)
		}
	}
	t.Logf("✅ blank frame reported as not found")
}

func TestInvoke_ShortBufferIsEngineError(t *testing.T) {
	_, err := Invoke(make([]byte, 10), 100, 100, Options{})
	if err == nil {
		t.Fatal("expected error for short luma buffer")
	}
	if got := Classify(err); got != KindEngine {
		t.Errorf("Classify() = %s, want engine", got)
	}
}

func TestInvoke_SkipsNotFoundReaders(t *testing.T) {
	const size = 240
	luma := encodeQR(t, "multi", size)

	res, err := Invoke(luma, size, size, Options{Formats: []Format{FormatEAN13, FormatQRCode}})
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if res.Text != "multi" {
		t.Errorf("Text = %q, want %q", res.Text, "multi")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "not found", err: gozxing.NewNotFoundException(), want: KindNotFound},
		{name: "format", err: gozxing.NewFormatException(), want: KindMalformed},
		{name: "checksum", err: gozxing.NewChecksumException(), want: KindMalformed},
		{name: "plain error", err: errors.New("boom"), want: KindEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "single", in: "qr_code", want: 1},
		{name: "spaced list", in: " qr_code , EAN_13,data_matrix ", want: 3},
		{name: "empty", in: "", want: 0},
		{name: "unknown", in: "qr_code,pdf_417", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormats(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d formats, want %d", len(got), tt.want)
			}
		})
	}
}
