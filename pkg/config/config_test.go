package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"trovo": {"enabled": true, "channel": "streamer", "bot_name": "BotName"}},
	  "dispatch": {"mode": "concurrent", "workers": 4},
	  "transport": {"kind": "websocket", "url": "wss://chat.example/{channel}"},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)

	t.Setenv("TROVOBRIDGE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Dispatch.Mode != DispatchConcurrent || cfg.Dispatch.Workers != 4 {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	if got := cfg.Gateway.Address(); got != "0.0.0.0:18790" {
		t.Fatalf("gateway address = %q", got)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("TROVOBRIDGE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"trovo": {"enabled": true, "channel": " streamer ", "bot_name": "BotName", "base_url": "https://trovo.example/"}},
	  "transport": {"url": "wss://chat.example"}
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "streamer", cfg.Channels.Trovo.Channel)
	require.Equal(t, DefaultBotID, cfg.Channels.Trovo.BotID)
	require.Equal(t, "https://trovo.example", cfg.Channels.Trovo.BaseURL)
	require.Equal(t, DispatchOrdered, cfg.Dispatch.Mode)
	require.Equal(t, DefaultWorkers, cfg.Dispatch.Workers)
	require.Equal(t, DefaultQueueSize, cfg.Dispatch.QueueSize)
	require.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	require.Equal(t, DefaultGatewayHost, cfg.Gateway.Host)
	require.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"trovo": {"enabled": true, "channel": "streamer", "bot_name": "BotName"}},
	  "transport": {"url": "wss://chat.example"}
	}`)

	t.Setenv("TROVOBRIDGE_CHANNELS_TROVO_BOT_NAME", "OtherBot")
	t.Setenv("TROVOBRIDGE_CHANNELS_TROVO_BOT_ID", "42")
	t.Setenv("TROVOBRIDGE_DISPATCH_MODE", "Concurrent")
	t.Setenv("TROVOBRIDGE_TRANSPORT_KIND", "replay")
	t.Setenv("TROVOBRIDGE_TRANSPORT_REPLAY_PATH", "/tmp/capture.txt")
	t.Setenv("TROVOBRIDGE_TRANSPORT_HEADERS", "Origin:https://trovo.live")
	t.Setenv("TROVOBRIDGE_GATEWAY_PORT", "9000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "OtherBot", cfg.Channels.Trovo.BotName)
	require.Equal(t, "42", cfg.Channels.Trovo.BotID)
	require.Equal(t, DispatchConcurrent, cfg.Dispatch.Mode)
	require.Equal(t, TransportReplay, cfg.Transport.Kind)
	require.Equal(t, "/tmp/capture.txt", cfg.Transport.ReplayPath)
	require.Equal(t, map[string]string{"Origin": "https://trovo.live"}, cfg.Transport.Headers)
	require.Equal(t, 9000, cfg.Gateway.Port)
}

func TestLoadConfigBadEnvironmentValue(t *testing.T) {
	path := writeConfig(t, `{}`)
	t.Setenv("TROVOBRIDGE_GATEWAY_PORT", "not-a-port")

	_, err := LoadFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "environment overrides")
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Channels:  ChannelsConfig{Trovo: ChannelConfig{Enabled: true}},
		Dispatch:  DispatchConfig{Mode: "parallel"},
		Transport: TransportConfig{Kind: "carrier-pigeon"},
	}
	cfg.ApplyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"channels.trovo.channel is required",
		"channels.trovo.bot_name is required",
		`dispatch.mode "parallel"`,
		`transport.kind "carrier-pigeon"`,
	} {
		require.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestValidateReplayNeedsPath(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Kind: TransportReplay}}
	cfg.ApplyDefaults()
	require.ErrorContains(t, cfg.Validate(), "transport.replay_path")
}

func TestValidateDisabledChannel(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
}
