package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/code-scanner/internal/decode"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS < 0 {
		return fmt.Errorf("shutdown_timeout_s must be >= 0")
	}
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateScanner(&cfg.Scanner); err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	for _, f := range cfg.Decoder.Formats {
		if _, err := decode.ParseFormats(f); err != nil {
			return fmt.Errorf("decoder: %w", err)
		}
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}

	if cfg.Torch.Enabled && cfg.Torch.Line == "" {
		return fmt.Errorf("torch.line is required when torch is enabled")
	}
	if cfg.Torch.Chip == "" {
		cfg.Torch.Chip = "gpiochip0"
	}

	if err := validateMQTT(cfg); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "code-scanner"
	}

	return nil
}

func validateScanner(s *ScannerConfig) error {
	if s.SampleIntervalMS < 0 {
		return fmt.Errorf("sample_interval_ms must be > 0")
	}
	if s.SampleIntervalMS == 0 {
		s.SampleIntervalMS = 500
	}

	if s.FrameRate < 0 || s.FrameRate > 120 {
		return fmt.Errorf("frame_rate must be between 0 and 120")
	}
	if s.FrameRate == 0 {
		s.FrameRate = 20
	}

	switch s.FacingMode {
	case "":
		s.FacingMode = "environment"
	case "environment", "user":
	default:
		return fmt.Errorf("facing_mode must be 'environment' or 'user', got %q", s.FacingMode)
	}

	if s.AcquireTimeoutS < 0 || s.DeviceTimeoutMS < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if s.AcquireTimeoutS == 0 {
		s.AcquireTimeoutS = 15
	}
	if s.DeviceTimeoutMS == 0 {
		s.DeviceTimeoutMS = 2000
	}
	return nil
}

func validateCamera(c *CameraConfig) error {
	switch c.Backend {
	case "":
		c.Backend = "gstreamer"
	case "gstreamer", "mediadevices", "gocv":
	default:
		return fmt.Errorf("unknown backend %q (must be gstreamer, mediadevices or gocv)", c.Backend)
	}

	if c.Backend == "gstreamer" {
		switch c.Source {
		case "":
			c.Source = "v4l2"
		case "v4l2", "test":
		case "rtsp":
			if c.URL == "" {
				return fmt.Errorf("url is required for rtsp source")
			}
		default:
			return fmt.Errorf("unknown source %q (must be v4l2, rtsp or test)", c.Source)
		}
	}

	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height must be >= 0")
	}
	if (c.Width == 0) != (c.Height == 0) {
		return fmt.Errorf("width and height must be set together")
	}
	return nil
}

func validateMQTT(cfg *Config) error {
	m := &cfg.MQTT

	switch m.Codec {
	case "":
		m.Codec = "json"
	case "json", "msgpack":
	default:
		return fmt.Errorf("codec must be 'json' or 'msgpack', got %q", m.Codec)
	}

	if m.QueueSize < 0 {
		return fmt.Errorf("queue_size must be >= 0")
	}
	if m.QueueSize == 0 {
		m.QueueSize = 64
	}

	if m.ClientID == "" {
		m.ClientID = fmt.Sprintf("code-scanner-%s", cfg.InstanceID)
	}

	if m.Topics.Control == "" {
		m.Topics.Control = fmt.Sprintf("scanner/control/%s", cfg.InstanceID)
	}
	if m.Topics.Responses == "" {
		m.Topics.Responses = fmt.Sprintf("scanner/responses/%s", cfg.InstanceID)
	}
	if m.Topics.Events == "" {
		m.Topics.Events = fmt.Sprintf("scanner/events/%s", cfg.InstanceID)
	}

	if m.QoS == nil {
		m.QoS = map[string]byte{
			"control": 1,
			"events":  1,
		}
	}
	for name, q := range m.QoS {
		if q > 2 {
			return fmt.Errorf("qos %q must be 0, 1 or 2", name)
		}
	}
	return nil
}
