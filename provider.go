package codescanner

import (
	"context"
	"image"
)

// Camera defines the contract for camera stream acquisition
//
// Implementations must guarantee:
//   - Acquire() blocks until the platform grants or denies the stream
//   - Acquire() honours ctx cancellation (returns an error, releases partial resources)
//   - Streams returned by Acquire() deliver frames through their video tracks
//     without any further call from the caller
type Camera interface {
	// Acquire requests a camera stream matching the constraints.
	//
	// This is one of the two suspension points of a session: the scanner calls
	// it off the driver goroutine and delivers the result back as a message.
	// A stream acquired after the session was closed is released by the scanner
	// (all tracks stopped), so implementations need not track cancellation themselves.
	//
	// Returns an error if:
	//   - No device matches or permission is denied
	//   - The pipeline or driver fails to start
	//   - ctx is cancelled or its deadline expires
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired camera stream
type Stream interface {
	// ID identifies the stream for logging
	ID() string

	// Tracks returns every track of the stream (video and any other kind).
	Tracks() []Track

	// VideoTracks returns the video tracks in platform order. The first one is
	// the capture source and the target of constraint updates.
	VideoTracks() []VideoTrack
}

// Track is a single media track of a stream
type Track interface {
	// Kind returns the track kind ("video", "audio")
	Kind() string

	// Stop releases the hardware behind the track.
	//
	// Safe to call multiple times (idempotent).
	Stop() error
}

// VideoTrack is a track that produces frames and accepts constraint updates
type VideoTrack interface {
	Track

	// ApplyConstraints updates the live track.
	//
	// Returns ErrTorchUnsupported when a torch change is requested on a device
	// without an illumination accessory, or the platform's rejection otherwise.
	ApplyConstraints(ctx context.Context, c Constraints) error

	// Frames returns the live frame source bound to this track.
	Frames() FrameSource
}

// TorchSwitch drives an illumination accessory that is not part of the
// camera driver (a GPIO LED, a USB relay). Backends without native torch
// control delegate to one when configured.
type TorchSwitch interface {
	SetTorch(ctx context.Context, on bool) error
}

// FrameSource exposes the most recent frame of a live video track
type FrameSource interface {
	// Latest returns the newest frame, or ok=false before the first frame.
	//
	// The returned image must not be modified by the caller.
	Latest() (img image.Image, ok bool)

	// Ready returns a channel closed once the first frame is available.
	Ready() <-chan struct{}
}

// Decoder is the decode engine as seen by the scanner
type Decoder interface {
	// Decode searches a luma buffer (one byte per pixel, row-major) for a symbol.
	//
	// Failures should be *Error values with one of the decode kinds. Any other
	// error is treated as KindDecodeEngineError.
	Decode(ctx context.Context, luma []byte, width, height int) (Outcome, error)
}

// Host receives session events.
//
// Methods are invoked on the scanner's driver goroutine, in order. They must
// return promptly and must not wait on Scanner commands (Start/Close/ToggleFlashlight),
// which are processed by that same goroutine.
type Host interface {
	// OnScanned is called once when a session decodes a symbol.
	OnScanned(sessionID string, o Outcome)

	// OnError is called for every error reported to the host.
	OnError(sessionID string, err *Error)

	// OnClosed is called exactly once per started session, after any terminal event.
	OnClosed(sessionID string)
}

// HostFuncs adapts plain functions to the Host interface. Nil fields are skipped.
type HostFuncs struct {
	Scanned func(sessionID string, o Outcome)
	Error   func(sessionID string, err *Error)
	Closed  func(sessionID string)
}

func (h HostFuncs) OnScanned(sessionID string, o Outcome) {
	if h.Scanned != nil {
		h.Scanned(sessionID, o)
	}
}

func (h HostFuncs) OnError(sessionID string, err *Error) {
	if h.Error != nil {
		h.Error(sessionID, err)
	}
}

func (h HostFuncs) OnClosed(sessionID string) {
	if h.Closed != nil {
		h.Closed(sessionID)
	}
}

// Hosts fans every event out to each host in order
type Hosts []Host

func (hs Hosts) OnScanned(sessionID string, o Outcome) {
	for _, h := range hs {
		h.OnScanned(sessionID, o)
	}
}

func (hs Hosts) OnError(sessionID string, err *Error) {
	for _, h := range hs {
		h.OnError(sessionID, err)
	}
}

func (hs Hosts) OnClosed(sessionID string) {
	for _, h := range hs {
		h.OnClosed(sessionID)
	}
}
