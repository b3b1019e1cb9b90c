package emitter

import (
	"time"

	codescanner "github.com/e7canasta/code-scanner"
)

// Event types, also used as the last topic segment
const (
	EventScanned = "scanned"
	EventError   = "error"
	EventClosed  = "closed"
)

// Event is the payload published for every session event
type Event struct {
	Type       string    `json:"type" msgpack:"type"`
	InstanceID string    `json:"instance_id" msgpack:"instance_id"`
	SessionID  string    `json:"session_id" msgpack:"session_id"`
	Timestamp  time.Time `json:"timestamp" msgpack:"timestamp"`

	// scanned
	Text     string `json:"text,omitempty" msgpack:"text,omitempty"`
	Format   string `json:"format,omitempty" msgpack:"format,omitempty"`
	RawBytes []byte `json:"raw_bytes,omitempty" msgpack:"raw_bytes,omitempty"`
	Width    int    `json:"width,omitempty" msgpack:"width,omitempty"`
	Height   int    `json:"height,omitempty" msgpack:"height,omitempty"`

	// error
	ErrorKind string `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	Error     string `json:"error,omitempty" msgpack:"error,omitempty"`
}

func scannedEvent(instanceID, sessionID string, o codescanner.Outcome) Event {
	return Event{
		Type:       EventScanned,
		InstanceID: instanceID,
		SessionID:  sessionID,
		Timestamp:  o.DecodedAt,
		Text:       o.Text,
		Format:     o.Format,
		RawBytes:   o.RawBytes,
		Width:      o.Width,
		Height:     o.Height,
	}
}

func errorEvent(instanceID, sessionID string, err *codescanner.Error) Event {
	ev := Event{
		Type:       EventError,
		InstanceID: instanceID,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
	}
	if err != nil {
		ev.ErrorKind = err.Kind.String()
		ev.Error = err.Error()
	}
	return ev
}

func closedEvent(instanceID, sessionID string) Event {
	return Event{
		Type:       EventClosed,
		InstanceID: instanceID,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
	}
}
