package cvcam

import "testing"

func TestConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDevice string
		wantW      int
		wantErr    bool
	}{
		{name: "zero config", cfg: Config{}, wantDevice: "0", wantW: 1280},
		{name: "device path kept", cfg: Config{DeviceID: "/dev/video2", Width: 640, Height: 480}, wantDevice: "/dev/video2", wantW: 640},
		{name: "bad size", cfg: Config{Width: 640}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.applyDefaults()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DeviceID != tt.wantDevice || cfg.Width != tt.wantW {
				t.Errorf("got device %q width %d, want %q %d", cfg.DeviceID, cfg.Width, tt.wantDevice, tt.wantW)
			}
		})
	}
}
