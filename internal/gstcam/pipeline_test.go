package gstcam

import (
	"testing"
	"time"
)

func TestBuildCaps(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		fps  float64
		want string
	}{
		{"integer fps", 1280, 720, 20, "video/x-raw,format=RGBA,width=1280,height=720,framerate=20/1"},
		{"fractional fps", 640, 480, 0.5, "video/x-raw,format=RGBA,width=640,height=480,framerate=1/2"},
		{"no fps", 640, 480, 0, "video/x-raw,format=RGBA,width=640,height=480"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildCaps(tt.w, tt.h, tt.fps); got != tt.want {
				t.Errorf("buildCaps() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRGBAFromBytes(t *testing.T) {
	data := make([]byte, 4*3*4+8)
	for i := range data {
		data[i] = byte(i)
	}

	img, ok := rgbaFromBytes(data, 4, 3)
	if !ok {
		t.Fatal("rgbaFromBytes() rejected a full buffer")
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("bounds = %v, want 4x3", img.Bounds())
	}
	if c := img.RGBAAt(1, 0); c.R != 4 || c.A != 7 {
		t.Errorf("pixel (1,0) = %v", c)
	}

	// The image must not alias the GStreamer buffer
	data[0] = 0xFF
	if img.Pix[0] == 0xFF {
		t.Errorf("image aliases the source buffer")
	}

	if _, ok := rgbaFromBytes(data[:10], 4, 3); ok {
		t.Errorf("short buffer accepted")
	}
	if _, ok := rgbaFromBytes(data, 0, 3); ok {
		t.Errorf("zero width accepted")
	}
}

// TestConfig_Validate tests fail-fast validation without a GStreamer runtime
func TestConfig_Validate(t *testing.T) {
	base := Config{
		Source:       SourceV4L2,
		Device:       "/dev/video0",
		Width:        1280,
		Height:       720,
		StartTimeout: 5 * time.Second,
		Retry:        DefaultRetryConfig(),
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid v4l2", mutate: func(*Config) {}},
		{name: "valid test source", mutate: func(c *Config) { c.Source = SourceTest }},
		{name: "valid rtsp", mutate: func(c *Config) { c.Source = SourceRTSP; c.URL = "rtsp://cam.local/stream" }},
		{name: "rtsp without url", mutate: func(c *Config) { c.Source = SourceRTSP }, wantErr: true},
		{name: "unknown source", mutate: func(c *Config) { c.Source = "hdmi" }, wantErr: true},
		{name: "zero height", mutate: func(c *Config) { c.Height = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.StartTimeout = -time.Second }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
