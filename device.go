package codescanner

import (
	"context"
	"fmt"
	"log/slog"
)

// SetTorch switches the illumination accessory of a held stream.
//
// The update carries the torch value plus the facing mode and frame rate of
// baseline, so platforms that merge constraints do not reset them. It is
// applied to the first video track of stream. Every failure is returned as
// a KindDeviceControlFailed *Error; the caller owns any advisory flag and must
// only flip it on a nil return.
func SetTorch(ctx context.Context, stream Stream, on bool, baseline Constraints) error {
	if stream == nil {
		return NewError(KindDeviceControlFailed, ErrNotStreaming)
	}

	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		return NewError(KindDeviceControlFailed, ErrNoVideoTrack)
	}

	update := Constraints{
		FacingMode: baseline.FacingMode,
		FrameRate:  baseline.FrameRate,
		Torch:      &on,
	}

	if err := tracks[0].ApplyConstraints(ctx, update); err != nil {
		return NewError(KindDeviceControlFailed, fmt.Errorf("apply torch=%t: %w", on, err))
	}

	slog.Debug("scanner: torch updated",
		"stream_id", stream.ID(),
		"torch", on,
	)
	return nil
}

// stopTracks stops every track of stream, logging failures
func stopTracks(stream Stream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		if err := t.Stop(); err != nil {
			slog.Warn("scanner: failed to stop track",
				"stream_id", stream.ID(),
				"kind", t.Kind(),
				"error", err,
			)
		}
	}
}
