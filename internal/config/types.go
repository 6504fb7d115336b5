package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Transports understood by push.transport.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config represents the complete .instsync.yaml configuration file.
type Config struct {
	Version   int             `yaml:"version" mapstructure:"version" validate:"gte=0"`
	Push      PushConfig      `yaml:"push" mapstructure:"push"`
	Reconnect ReconnectConfig `yaml:"reconnect" mapstructure:"reconnect"`
	Pull      PullConfig      `yaml:"pull" mapstructure:"pull"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PushConfig describes the real-time channel.
type PushConfig struct {
	// Transport is "websocket" or "nats".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"oneof=websocket nats"`

	// URL is ws://, wss:// for websocket or nats:// for nats.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`

	// SubjectPrefix roots the NATS subjects. Ignored for websocket.
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`

	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gt=0"`

	// AckTimeout bounds how long a command waits for the server's reply.
	// Zero waits forever.
	AckTimeout time.Duration `yaml:"ack_timeout" mapstructure:"ack_timeout" validate:"gte=0"`
}

// ReconnectConfig is the automatic recovery policy.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0,lte=20"`
	ManualDelay time.Duration `yaml:"manual_delay" mapstructure:"manual_delay" validate:"gte=0"`
}

// PullConfig describes the REST fallback.
type PullConfig struct {
	URL      string        `yaml:"url" mapstructure:"url" validate:"required,http_url"`
	Path     string        `yaml:"path" mapstructure:"path" validate:"required,startswith=/"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

// LogConfig controls where logs go.
type LogConfig struct {
	// File receives logs while the dashboard owns the terminal. Empty
	// discards them.
	File string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Push: PushConfig{
			Transport:     TransportWebSocket,
			URL:           "ws://localhost:5000/ws",
			SubjectPrefix: "instances",
			DialTimeout:   30 * time.Second,
			AckTimeout:    30 * time.Second,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   time.Second,
			MaxAttempts: 5,
			ManualDelay: time.Second,
		},
		Pull: PullConfig{
			URL:      "http://localhost:5000",
			Path:     "/api/instances",
			Interval: 10 * time.Second,
			Timeout:  10 * time.Second,
		},
	}
}
