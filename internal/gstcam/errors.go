package gstcam

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies GStreamer failures for retry decisions and telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryBusy indicates the capture device is held by another process
	ErrCategoryBusy
	// ErrCategoryDevice indicates a missing device or denied device permission
	ErrCategoryDevice
	// ErrCategoryCodec indicates caps negotiation or decode failures
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryBusy:
		return "busy"
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryNetwork || e == ErrCategoryBusy
}

// PipelineError is a classified error popped from the pipeline bus
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("gstcam: pipeline error [%s]: %s", e.Category, e.Message)
}

// ErrEndOfStream is returned when the source ends before or during capture
var ErrEndOfStream = errors.New("gstcam: end of stream")

// ClassifyGStreamerError analyzes a GStreamer error and categorizes it.
//
// go-gst's GError does not expose the error domain, so classification relies
// on keywords in the message and debug string.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyText(gerr.Error(), gerr.DebugString())
}

// newPipelineError builds a PipelineError from a bus error message
func newPipelineError(gerr *gst.GError) *PipelineError {
	if gerr == nil {
		return &PipelineError{Category: ErrCategoryUnknown, Message: "unknown error"}
	}
	return &PipelineError{
		Category: ClassifyGStreamerError(gerr),
		Message:  gerr.Error(),
		Debug:    gerr.DebugString(),
	}
}

// categoryOf returns the category of err, or ErrCategoryUnknown
func categoryOf(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrCategoryUnknown
}

var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	// Most specific first
	{ErrCategoryAuth, []string{"unauthorized", "401", "403", "forbidden", "authentication", "credentials"}},
	{ErrCategoryBusy, []string{"busy", "resource temporarily unavailable", "ebusy"}},
	{ErrCategoryDevice, []string{"no such device", "no such file", "permission denied", "cannot identify device", "not a capture device"}},
	{ErrCategoryCodec, []string{"not negotiated", "not-negotiated", "negotiation", "caps", "codec", "decode", "format", "missing plugin", "no decoder"}},
	{ErrCategoryNetwork, []string{"connection", "timeout", "timed out", "unreachable", "network", "dns", "resolve", "socket", "could not connect"}},
}

func classifyText(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(combined, kw) {
				return c.category
			}
		}
	}
	return ErrCategoryUnknown
}
