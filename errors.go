package codescanner

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned by commands when no Run loop is active
	ErrNotRunning = errors.New("scanner: not running")
	// ErrAlreadyRunning is returned by Run when another Run loop is active
	ErrAlreadyRunning = errors.New("scanner: already running")
	// ErrNotIdle is returned by Start while a session is acquiring or streaming
	ErrNotIdle = errors.New("scanner: session already active")
	// ErrNotStreaming is returned by ToggleFlashlight outside the streaming phase
	ErrNotStreaming = errors.New("scanner: no stream held")
	// ErrNoVideoTrack is returned when a stream carries no video track
	ErrNoVideoTrack = errors.New("scanner: stream has no video track")
	// ErrTorchUnsupported is returned by tracks that cannot switch a torch
	ErrTorchUnsupported = errors.New("scanner: torch not supported by device")
)

// ErrorKind classifies errors reported to the host
type ErrorKind int

const (
	// KindAcquisitionFailed indicates the platform denied the stream or no device matched
	KindAcquisitionFailed ErrorKind = iota
	// KindDecodeNotFound indicates no symbol was found in the frame (never reported)
	KindDecodeNotFound
	// KindDecodeMalformed indicates a symbol was found but could not be parsed
	KindDecodeMalformed
	// KindDecodeEngineError indicates an unexpected failure inside the decode engine
	KindDecodeEngineError
	// KindDeviceControlFailed indicates a torch or constraint update failed
	KindDeviceControlFailed
)

// String returns a human-readable string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindAcquisitionFailed:
		return "acquisition_failed"
	case KindDecodeNotFound:
		return "decode_not_found"
	case KindDecodeMalformed:
		return "decode_malformed"
	case KindDecodeEngineError:
		return "decode_engine_error"
	case KindDeviceControlFailed:
		return "device_control_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether an error of this kind ends the session by default
func (k ErrorKind) Terminal() bool {
	switch k {
	case KindAcquisitionFailed, KindDecodeMalformed, KindDecodeEngineError:
		return true
	default:
		return false
	}
}

// Error is a classified scanner error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds a classified error wrapping err
func NewError(kind ErrorKind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scanner: %s", e.Kind)
	}
	return fmt.Sprintf("scanner: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind of err.
//
// Errors that are not *Error (anywhere in the chain) are engine errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindDecodeEngineError
}

// asError returns err as *Error, classifying unknown errors with kind
func asError(err error, kind ErrorKind) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return NewError(kind, err)
}
