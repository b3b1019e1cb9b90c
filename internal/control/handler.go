package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	codescanner "github.com/e7canasta/code-scanner"
	"github.com/e7canasta/code-scanner/internal/config"
)

const (
	subscribeTimeout = 5 * time.Second
	publishTimeout   = 2 * time.Second
	commandTimeout   = 5 * time.Second
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string      `json:"command_ack"`
	Status     string      `json:"status"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	Timestamp  string      `json:"timestamp"`
}

// Client is the part of mqtt.Client the handler uses
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnStart            func(ctx context.Context) error
	OnClose            func(ctx context.Context) error
	OnToggleFlashlight func(ctx context.Context) error
	OnGetStatus        func() codescanner.Status
	OnShutdown         func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg       *config.Config
	client    Client
	commands  chan Command
	callbacks CommandCallbacks

	stopOnce sync.Once
	now      func() time.Time
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
		now:       time.Now,
	}
}

// Start subscribes to the control topic and processes commands until ctx is done
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("control: subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	slog.Info("control: handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop unsubscribes from the control topic. Safe to call multiple times.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
			token.WaitTimeout(subscribeTimeout)
		}
		slog.Info("control: handler stopped")
	})
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			resp := h.handleCommand(ctx, cmd)
			h.sendResponse(resp)

			if cmd.Command == "shutdown" && resp.Status == "success" {
				go h.shutdown()
			}
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Command {
	case "start":
		h.run(ctx, &resp, "start", h.callbacks.OnStart)

	case "close":
		h.run(ctx, &resp, "close", h.callbacks.OnClose)

	case "toggle_flashlight":
		h.run(ctx, &resp, "toggle_flashlight", h.callbacks.OnToggleFlashlight)
		if resp.Status == "success" && h.callbacks.OnGetStatus != nil {
			resp.Data = map[string]interface{}{
				"flashlight": h.callbacks.OnGetStatus().Flashlight,
			}
		}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
			break
		}
		slog.Warn("control: shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

// run invokes a session command callback and fills resp
func (h *Handler) run(ctx context.Context, resp *Response, name string, fn func(context.Context) error) {
	if fn == nil {
		resp.Status = "error"
		resp.Error = name + " not implemented"
		return
	}

	if err := fn(ctx); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		var se *codescanner.Error
		if errors.As(err, &se) {
			resp.ErrorKind = se.Kind.String()
		}
		return
	}

	resp.Status = "success"
	if h.callbacks.OnGetStatus != nil {
		resp.Data = map[string]interface{}{
			"phase": h.callbacks.OnGetStatus().Phase.String(),
		}
	}
}

func (h *Handler) shutdown() {
	// give the response a moment to leave before the process winds down
	time.Sleep(500 * time.Millisecond)
	if err := h.callbacks.OnShutdown(); err != nil {
		slog.Error("control: shutdown callback failed", "error", err)
	}
}

// sendResponse publishes a response to the responses topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Responses
	qos := h.cfg.MQTT.QoS["control"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Error("control: response publish timeout", "command_ack", resp.CommandAck)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
