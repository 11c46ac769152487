package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigPath = "TROVOBRIDGE_CONFIG"
	envPrefix     = "TROVOBRIDGE_"
)

const (
	DispatchOrdered    = "ordered"
	DispatchConcurrent = "concurrent"

	TransportWebSocket = "websocket"
	TransportReplay    = "replay"
)

const (
	DefaultBaseURL     = "https://trovo.live"
	DefaultBotID       = "999999999"
	DefaultQueueSize   = 256
	DefaultWorkers     = 8
	DefaultGatewayHost = "127.0.0.1"
	DefaultGatewayPort = 18791
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels" envPrefix:"CHANNELS_"`
	Dispatch  DispatchConfig  `json:"dispatch" envPrefix:"DISPATCH_"`
	Transport TransportConfig `json:"transport" envPrefix:"TRANSPORT_"`
	Gateway   GatewayConfig   `json:"gateway" envPrefix:"GATEWAY_"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
// Its environment overrides are read by the logger package.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores chat adapter settings.
type ChannelsConfig struct {
	Trovo ChannelConfig `json:"trovo" envPrefix:"TROVO_"`
}

// ChannelConfig configures one Trovo chat channel.
type ChannelConfig struct {
	Enabled bool `json:"enabled" env:"ENABLED"`
	// Channel is the streamer's channel name, as it appears in the chat URL.
	Channel string `json:"channel" env:"CHANNEL"`
	// BotName is the display name the bridge posts as; its own messages are
	// dropped on the way in.
	BotName string `json:"bot_name" env:"BOT_NAME"`
	// BotID becomes the recipient ID of every inbound activity.
	BotID         string `json:"bot_id" env:"BOT_ID"`
	BaseURL       string `json:"base_url" env:"BASE_URL"`
	MaxTextLength int    `json:"max_text_length" env:"MAX_TEXT_LENGTH"`
}

// DispatchConfig selects how accepted messages reach the pipeline.
type DispatchConfig struct {
	Mode      string `json:"mode" env:"MODE"`
	Workers   int    `json:"workers" env:"WORKERS"`
	QueueSize int    `json:"queue_size" env:"QUEUE_SIZE"`
}

// TransportConfig selects where frames come from and where replies go.
type TransportConfig struct {
	Kind               string            `json:"kind" env:"KIND"`
	URL                string            `json:"url" env:"URL"`
	Headers            map[string]string `json:"headers,omitempty" env:"HEADERS"`
	DialTimeoutSeconds int               `json:"dial_timeout_seconds" env:"DIAL_TIMEOUT_SECONDS"`
	ReplayPath         string            `json:"replay_path" env:"REPLAY_PATH"`
	ReplayIntervalMS   int               `json:"replay_interval_ms" env:"REPLAY_INTERVAL_MS"`
	// RecordPath, when set, captures every received frame for later replay.
	RecordPath string `json:"record_path" env:"RECORD_PATH"`
	// OutputPath receives rendered replies; empty means stdout.
	OutputPath string `json:"output_path" env:"OUTPUT_PATH"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host" env:"HOST"`
	Port int    `json:"port" env:"PORT"`
}

// Address returns host:port for the status server.
func (g GatewayConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoadConfig resolves config.json, unmarshals it, applies environment
// overrides and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile loads the config at path. See LoadConfig.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects TROVOBRIDGE_* settings on top of file config.
// Unset variables leave the file values alone.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	trovo := &c.Channels.Trovo
	trovo.Channel = strings.TrimSpace(trovo.Channel)
	trovo.BotName = strings.TrimSpace(trovo.BotName)
	if strings.TrimSpace(trovo.BotID) == "" {
		trovo.BotID = DefaultBotID
	}
	if strings.TrimSpace(trovo.BaseURL) == "" {
		trovo.BaseURL = DefaultBaseURL
	}
	trovo.BaseURL = strings.TrimRight(strings.TrimSpace(trovo.BaseURL), "/")

	c.Dispatch.Mode = strings.ToLower(strings.TrimSpace(c.Dispatch.Mode))
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchOrdered
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = DefaultWorkers
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = DefaultQueueSize
	}

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportWebSocket
	}

	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	trovo := c.Channels.Trovo
	if trovo.Enabled {
		if trovo.Channel == "" {
			errs = append(errs, errors.New("channels.trovo.channel is required"))
		}
		if trovo.BotName == "" {
			errs = append(errs, errors.New("channels.trovo.bot_name is required"))
		}
	}
	if trovo.MaxTextLength < 0 {
		errs = append(errs, errors.New("channels.trovo.max_text_length must not be negative"))
	}

	switch c.Dispatch.Mode {
	case DispatchOrdered, DispatchConcurrent:
	default:
		errs = append(errs, fmt.Errorf("dispatch.mode %q is not one of %s, %s", c.Dispatch.Mode, DispatchOrdered, DispatchConcurrent))
	}

	switch c.Transport.Kind {
	case TransportWebSocket:
		if trovo.Enabled && strings.TrimSpace(c.Transport.URL) == "" {
			errs = append(errs, errors.New("transport.url is required for the websocket transport"))
		}
	case TransportReplay:
		if strings.TrimSpace(c.Transport.ReplayPath) == "" {
			errs = append(errs, errors.New("transport.replay_path is required for the replay transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not one of %s, %s", c.Transport.Kind, TransportWebSocket, TransportReplay))
	}
	if c.Transport.DialTimeoutSeconds < 0 || c.Transport.ReplayIntervalMS < 0 {
		errs = append(errs, errors.New("transport timeouts must not be negative"))
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d is out of range", c.Gateway.Port))
	}

	return errors.Join(errs...)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TROVOBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
