package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trovobridge/pkg/activity"
	"trovobridge/pkg/bot"
	"trovobridge/pkg/bus"
	"trovobridge/pkg/channel"
	"trovobridge/pkg/channel/trovo"
	"trovobridge/pkg/config"
	"trovobridge/pkg/gateway"
	"trovobridge/pkg/transport"
)

const trovoChannelName = "trovo"

// bridge is one wired runtime: bus, adapters and gateway service.
type bridge struct {
	bus      *bus.MessageBus
	trovo    *trovo.Adapter
	adapters []channel.Adapter
	service  *gateway.Service
	closers  []io.Closer
	log      *slog.Logger
}

// newBridge wires the configured channel to the built-in bot. Replies go to
// out unless transport.output_path is set.
func newBridge(cfg *config.Config, out io.Writer, log *slog.Logger) (*bridge, error) {
	b := &bridge{bus: bus.NewMessageBusSize(cfg.Dispatch.QueueSize), log: log}

	adapters, err := b.enabledAdapters(cfg, out, log)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.adapters = adapters

	var opts []gateway.Option
	if cfg.Transport.Kind == config.TransportReplay {
		opts = append(opts, gateway.ExitWhenIdle())
	}
	svc, err := gateway.NewService(cfg, adapters, bot.NewCommands(log), b.bus, log, opts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("initialize gateway service: %w", err)
	}
	b.service = svc
	return b, nil
}

func (b *bridge) enabledAdapters(cfg *config.Config, out io.Writer, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Trovo.Enabled {
		adapter, err := b.newTrovoAdapter(cfg, out, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", trovoChannelName, err)
		}
		b.trovo = adapter
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func (b *bridge) newTrovoAdapter(cfg *config.Config, out io.Writer, log *slog.Logger) (*trovo.Adapter, error) {
	source, err := b.source(cfg.Transport, cfg.Channels.Trovo.Channel)
	if err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(cfg.Transport.OutputPath); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output file: %w", err)
		}
		b.closers = append(b.closers, file)
		out = file
	}

	adapter, err := trovo.NewAdapter(cfg.Channels.Trovo, trovo.Deps{
		Source:   source,
		Renderer: transport.NewWriterRenderer(out, ""),
		Bus:      b.bus,
		Mode:     cfg.Dispatch.Mode,
		Workers:  cfg.Dispatch.Workers,
	}, log)
	if err != nil {
		return nil, err
	}

	adapter.Use(
		activity.Recover(),
		activity.Logging(log),
		activity.MaxTextLength(cfg.Channels.Trovo.MaxTextLength),
	)
	return adapter, nil
}

func (b *bridge) source(cfg config.TransportConfig, channelID string) (transport.Source, error) {
	var source transport.Source
	switch cfg.Kind {
	case config.TransportReplay:
		source = &transport.ReplaySource{
			Path:     cfg.ReplayPath,
			Interval: time.Duration(cfg.ReplayIntervalMS) * time.Millisecond,
		}
	default:
		header := make(http.Header, len(cfg.Headers))
		for name, value := range cfg.Headers {
			header.Set(name, value)
		}
		source = &transport.WSSource{
			URL:         cfg.URL,
			Header:      header,
			DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		}
	}

	if path := strings.TrimSpace(cfg.RecordPath); path != "" {
		path = strings.ReplaceAll(path, transport.ChannelPlaceholder, channelID)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create record directory: %w", err)
		}
		capture, err := transport.CreateCapture(path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, capture)
		source = transport.Record(source, capture, b.log)
	}

	return source, nil
}

// Close releases output and capture files and the bus.
func (b *bridge) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
	b.closers = nil
	b.bus.Close()
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
