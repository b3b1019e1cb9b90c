package codescanner

import "time"

// Phase is the lifecycle phase of the scanner's current session
type Phase int

const (
	// PhaseIdle means no session is active and Start is accepted
	PhaseIdle Phase = iota
	// PhaseAcquiring means a camera stream has been requested and not yet resolved
	PhaseAcquiring
	// PhaseStreaming means a stream is held and frames are being sampled
	PhaseStreaming
	// PhaseClosed means the last session ended (success, error or cancel)
	PhaseClosed
)

// String returns a human-readable string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// FacingMode selects which camera a platform should prefer
type FacingMode string

const (
	// FacingEnvironment prefers the rear-facing camera
	FacingEnvironment FacingMode = "environment"
	// FacingUser prefers the front-facing camera
	FacingUser FacingMode = "user"
)

// Constraints describes a camera acquisition or a constraint update on a track
type Constraints struct {
	// FacingMode is the camera preference (advisory on desktop drivers)
	FacingMode FacingMode
	// FrameRate is the target frames per second
	FrameRate float64
	// Torch requests the illumination accessory on or off. Nil leaves it untouched.
	Torch *bool
}

// Outcome is a successful decode result
type Outcome struct {
	// Text is the decoded payload
	Text string `json:"text"`
	// Format is the symbology name (e.g., "QR_CODE", "EAN_13")
	Format string `json:"format"`
	// RawBytes holds the raw payload bytes when the engine exposes them
	RawBytes []byte `json:"raw_bytes,omitempty"`
	// Metadata carries engine-specific result metadata keyed by name
	Metadata map[string]string `json:"metadata,omitempty"`
	// Width and Height are the dimensions of the sampled frame that decoded
	Width  int `json:"width"`
	Height int `json:"height"`
	// DecodedAt is when the decode completed
	DecodedAt time.Time `json:"decoded_at"`
}

// FrameSample is a raw RGBA snapshot taken at one timer tick
type FrameSample struct {
	Width  int
	Height int
	// Pix holds 4 bytes per pixel (R, G, B, A), rows tightly packed
	Pix []byte
}

// Config contains configuration for a Scanner
type Config struct {
	// SampleInterval is the period between frame samples (default 500ms)
	SampleInterval time.Duration
	// FrameRate is the target frame rate requested at acquisition (default 20)
	FrameRate float64
	// FacingMode is the camera preference requested at acquisition (default environment)
	FacingMode FacingMode
	// AcquireTimeout bounds a single stream acquisition (default 15s)
	AcquireTimeout time.Duration
	// DeviceTimeout bounds a single constraint update (default 2s)
	DeviceTimeout time.Duration
	// ContinueOnDecodeError keeps the session streaming after a malformed
	// or engine decode error instead of closing it. The error is reported
	// to the host either way; with this set, sampling resumes on the next
	// tick and only a successful scan or Close ends the session.
	ContinueOnDecodeError bool
}

// DefaultConfig returns the default scanner configuration
func DefaultConfig() Config {
	return Config{
		SampleInterval: 500 * time.Millisecond,
		FrameRate:      20,
		FacingMode:     FacingEnvironment,
		AcquireTimeout: 15 * time.Second,
		DeviceTimeout:  2 * time.Second,
	}
}

// Stats contains scanner counters since construction
type Stats struct {
	// SessionsStarted counts accepted Start commands
	SessionsStarted uint64 `json:"sessions_started"`
	// Scans counts successful decodes
	Scans uint64 `json:"scans"`
	// Ticks counts timer ticks processed while streaming
	Ticks uint64 `json:"ticks"`
	// TicksSkipped counts ticks dropped because a decode was still in flight
	// or no frame was available
	TicksSkipped uint64 `json:"ticks_skipped"`
	// DecodeAttempts counts decodes dispatched
	DecodeAttempts uint64 `json:"decode_attempts"`
	// DecodeNotFound counts decodes that found no symbol
	DecodeNotFound uint64 `json:"decode_not_found"`
	// Errors counts errors reported to the host
	Errors uint64 `json:"errors"`
	// StaleResults counts acquisition or decode results ignored after their session ended
	StaleResults uint64 `json:"stale_results"`
	// LastDecodeLatency is the duration of the most recent decode attempt
	LastDecodeLatency time.Duration `json:"last_decode_latency_ns"`
}

// Status is a point-in-time snapshot of the scanner
type Status struct {
	Phase      Phase  `json:"phase"`
	SessionID  string `json:"session_id,omitempty"`
	Flashlight bool   `json:"flashlight"`
	// LastResult is the most recent successful outcome across sessions
	LastResult *Outcome `json:"last_result,omitempty"`
	Stats      Stats    `json:"stats"`
}
