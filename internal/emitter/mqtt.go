package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/config"
)

const publishTimeout = 2 * time.Second

var (
	// ErrNotConnected is returned when publishing without a broker connection
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrPublishTimeout is returned when the broker does not acknowledge in time
	ErrPublishTimeout = errors.New("publish timeout")
)

// publisher is the part of mqtt.Client the emitter needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes scanner session events to the MQTT broker.
//
// It implements codescanner.Host. Host callbacks only enqueue; Run publishes.
// When the queue is full the event is dropped and counted, so a slow broker
// never stalls the scanner.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane

	pub   publisher
	codec Codec
	queue chan Event

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	dropped   uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter.
//
// Returns an error if the configured codec is unknown.
func NewMQTTEmitter(cfg *config.Config) (*MQTTEmitter, error) {
	codec, err := NewCodec(cfg.MQTT.Codec)
	if err != nil {
		return nil, fmt.Errorf("emitter: %w", err)
	}

	size := cfg.MQTT.QueueSize
	if size <= 0 {
		size = 64
	}

	return &MQTTEmitter{
		cfg:       cfg,
		codec:     codec,
		queue:     make(chan Event, size),
		published: make(map[string]uint64),
	}, nil
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.MQTT.Broker)
	opts.SetClientID(e.cfg.MQTT.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.MQTT.ClientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.Client = mqtt.NewClient(opts)
	e.pub = e.Client

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return fmt.Errorf("emitter: mqtt connection cancelled: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) OnScanned(sessionID string, o codescanner.Outcome) {
	e.enqueue(scannedEvent(e.cfg.InstanceID, sessionID, o))
}

func (e *MQTTEmitter) OnError(sessionID string, err *codescanner.Error) {
	e.enqueue(errorEvent(e.cfg.InstanceID, sessionID, err))
}

func (e *MQTTEmitter) OnClosed(sessionID string) {
	e.enqueue(closedEvent(e.cfg.InstanceID, sessionID))
}

func (e *MQTTEmitter) enqueue(ev Event) {
	select {
	case e.queue <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		dropped := e.dropped
		e.mu.Unlock()
		slog.Warn("emitter: event queue full, dropping event",
			"type", ev.Type,
			"session_id", ev.SessionID,
			"dropped_total", dropped,
		)
	}
}

// Run publishes queued events until ctx is cancelled.
//
// Events still queued at cancellation are published before Run returns.
func (e *MQTTEmitter) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-e.queue:
			e.publishLogged(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-e.queue:
					e.publishLogged(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (e *MQTTEmitter) publishLogged(ev Event) {
	if err := e.Publish(ev); err != nil {
		slog.Error("emitter: failed to publish event",
			"type", ev.Type,
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

// Publish encodes ev and publishes it to the events topic of its type
func (e *MQTTEmitter) Publish(ev Event) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	topic := e.cfg.EventTopic(ev.Type)
	qos := e.getQoS(ev.Type)

	payload, err := e.codec.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.pub.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: event published",
		"topic", topic,
		"qos", qos,
		"codec", e.codec.Name(),
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Dropped:   e.dropped,
		Errors:    e.errors,
		Queued:    len(e.queue),
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Dropped   uint64            `json:"dropped"`
	Errors    uint64            `json:"errors"`
	Queued    int               `json:"queued"`
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// getQoS returns the QoS for an event type, falling back to the "events" entry
func (e *MQTTEmitter) getQoS(eventType string) byte {
	if qos, ok := e.cfg.MQTT.QoS[eventType]; ok {
		return qos
	}
	return e.cfg.MQTT.QoS["events"]
}
