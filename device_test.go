package codescanner

import (
	"context"
	"errors"
	"testing"
)

func TestSetTorch(t *testing.T) {
	baseline := Constraints{FacingMode: FacingEnvironment, FrameRate: 20}

	t.Run("applies torch with baseline", func(t *testing.T) {
		stream := newFakeStream("s")
		if err := SetTorch(context.Background(), stream, true, baseline); err != nil {
			t.Fatalf("SetTorch() failed: %v", err)
		}
		applied := stream.video[0].Applied()
		if len(applied) != 1 {
			t.Fatalf("updates = %d, want 1", len(applied))
		}
		c := applied[0]
		if c.Torch == nil || !*c.Torch {
			t.Errorf("torch = %v, want true", c.Torch)
		}
		if c.FacingMode != FacingEnvironment || c.FrameRate != 20 {
			t.Errorf("baseline lost: %+v", c)
		}
	})

	tests := []struct {
		name    string
		stream  Stream
		setup   func(*fakeStream)
		wantErr error
	}{
		{name: "nil stream", stream: nil, wantErr: ErrNotStreaming},
		{name: "no video track", stream: &fakeStream{id: "a", other: []*fakeTrack{{kind: "audio"}}}, wantErr: ErrNoVideoTrack},
		{
			name:    "track refuses",
			stream:  newFakeStream("s"),
			setup:   func(s *fakeStream) { s.video[0].setFail(ErrTorchUnsupported) },
			wantErr: ErrTorchUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fs, ok := tt.stream.(*fakeStream); ok && tt.setup != nil {
				tt.setup(fs)
			}
			err := SetTorch(context.Background(), tt.stream, true, baseline)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetTorch() = %v, want %v", err, tt.wantErr)
			}
			if KindOf(err) != KindDeviceControlFailed {
				t.Errorf("kind = %s, want device_control_failed", KindOf(err))
			}
		})
	}
}

func TestStopTracks(t *testing.T) {
	stream := newFakeStream("s")
	stopTracks(stream)
	if !stream.allStopped() {
		t.Errorf("not every track stopped")
	}

	// nil stream is a no-op
	stopTracks(nil)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		name     string
		terminal bool
	}{
		{KindAcquisitionFailed, "acquisition_failed", true},
		{KindDecodeNotFound, "decode_not_found", false},
		{KindDecodeMalformed, "decode_malformed", true},
		{KindDecodeEngineError, "decode_engine_error", true},
		{KindDeviceControlFailed, "device_control_failed", false},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.kind.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %t, want %t", tt.name, got, tt.terminal)
		}
	}

	wrapped := NewError(KindAcquisitionFailed, errors.New("denied"))
	if got := wrapped.Error(); got != "scanner: acquisition_failed: denied" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(errors.New("plain")) != KindDecodeEngineError {
		t.Errorf("plain errors must classify as engine errors")
	}
}
