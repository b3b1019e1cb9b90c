package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	codescanner "github.com/e7canasta/code-scanner"
)

// Config represents the complete scanner daemon configuration
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Scanner          ScannerConfig   `yaml:"scanner"`
	Decoder          DecoderConfig   `yaml:"decoder"`
	Camera           CameraConfig    `yaml:"camera"`
	Torch            TorchConfig     `yaml:"torch"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
	HTTP             HTTPConfig      `yaml:"http"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
}

// ScannerConfig contains capture session settings
type ScannerConfig struct {
	SampleIntervalMS      int     `yaml:"sample_interval_ms"` // default 500
	FrameRate             float64 `yaml:"frame_rate"`         // requested capture rate (default 20)
	FacingMode            string  `yaml:"facing_mode"`        // environment, user
	AcquireTimeoutS       int     `yaml:"acquire_timeout_s"`  // default 15
	DeviceTimeoutMS       int     `yaml:"device_timeout_ms"`  // default 2000
	ContinueOnDecodeError bool    `yaml:"continue_on_decode_error"`
}

// DecoderConfig contains decode engine settings
type DecoderConfig struct {
	TryHarder bool     `yaml:"try_harder"`
	PreFilter bool     `yaml:"prefilter"`
	Formats   []string `yaml:"formats"` // qr_code, data_matrix, aztec, code_128, ean_13
}

// CameraConfig selects and configures the capture backend
type CameraConfig struct {
	Backend string `yaml:"backend"` // gstreamer, mediadevices, gocv
	Source  string `yaml:"source"`  // gstreamer only: v4l2, rtsp, test
	Device  string `yaml:"device"`  // device path, index or id
	URL     string `yaml:"url"`     // rtsp location
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// TorchConfig contains the GPIO illumination LED settings
type TorchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Chip      string `yaml:"chip"`
	Line      string `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string          `yaml:"broker"`
	ClientID  string          `yaml:"client_id"`
	Codec     string          `yaml:"codec"`      // json, msgpack
	QueueSize int             `yaml:"queue_size"` // event queue depth (default 64)
	Topics    MQTTTopics      `yaml:"topics"`
	QoS       map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control   string `yaml:"control"`
	Responses string `yaml:"responses"`
	Events    string `yaml:"events"` // prefix; the event type is appended
}

// HTTPConfig contains the HTTP API settings
type HTTPConfig struct {
	Disabled bool   `yaml:"disabled"`
	Addr     string `yaml:"addr"`
}

// TelemetryConfig contains OpenTelemetry settings. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ToScannerConfig converts the scanner section to codescanner.Config
func (c *Config) ToScannerConfig() codescanner.Config {
	return codescanner.Config{
		SampleInterval:        time.Duration(c.Scanner.SampleIntervalMS) * time.Millisecond,
		FrameRate:             c.Scanner.FrameRate,
		FacingMode:            codescanner.FacingMode(c.Scanner.FacingMode),
		AcquireTimeout:        time.Duration(c.Scanner.AcquireTimeoutS) * time.Second,
		DeviceTimeout:         time.Duration(c.Scanner.DeviceTimeoutMS) * time.Millisecond,
		ContinueOnDecodeError: c.Scanner.ContinueOnDecodeError,
	}
}

// ToDecoderConfig converts the decoder section to codescanner.DecoderConfig
func (c *Config) ToDecoderConfig() codescanner.DecoderConfig {
	return codescanner.DecoderConfig{
		TryHarder: c.Decoder.TryHarder,
		PreFilter: c.Decoder.PreFilter,
		Formats:   c.Decoder.Formats,
	}
}

// ShutdownTimeout returns the graceful shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// EventTopic returns the topic for an event type
func (c *Config) EventTopic(eventType string) string {
	return c.MQTT.Topics.Events + "/" + eventType
}
