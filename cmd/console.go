package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trovobridge/pkg/bus"
	"trovobridge/pkg/logger"
	"trovobridge/pkg/ui/console"
)

const outboundQueueTimeout = 5 * time.Second

var consoleLogPath string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the bridge with a live operator console",
	Long: "Runs the chat bridge in-process and shows its traffic in a terminal UI. " +
		"Text typed into the console is queued on the bridge's outbound bus and sent to chat as the bot. " +
		"Logs go to --log-file.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFile, err := os.OpenFile(consoleLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()

		appLogger, err := logger.NewWithWriter(cfg.Logging, logFile)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.console")

		// Replies are shown in the console; they reach a writer only via output_path.
		b, err := newBridge(cfg, io.Discard, log)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.trovo == nil {
			return errors.New("the console needs the trovo channel enabled")
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(runCtx)
		defer cancel()

		events, unsubscribe := b.bus.SubscribeEvents(ctx, 512)
		defer unsubscribe()

		bridgeErr := make(chan error, 1)
		go func() {
			err := b.service.Run(ctx)
			if err != nil {
				log.Error("Bridge runtime failed", "error", err)
			}
			// Closing the bus ends the console's event feed.
			b.bus.Close()
			bridgeErr <- err
		}()

		uiErr := console.Run(ctx, console.Options{
			Channel: cfg.Channels.Trovo.Channel,
			Events:  events,
			Send:    publishOutbound(b.bus, cfg.Channels.Trovo.Channel),
			Stats:   b.trovo.Stats,
		})

		cancel()
		if err := <-bridgeErr; err != nil {
			return err
		}
		return uiErr
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleLogPath, "log-file", "trovobridge-console.log", "file receiving bridge logs while the console runs")
}

// publishOutbound queues console text for the trovo adapter. Delivery
// failures surface as activity_failed events in the console log.
func publishOutbound(mb *bus.MessageBus, channelID string) console.SendFunc {
	return func(ctx context.Context, text string) error {
		ctx, cancel := context.WithTimeout(ctx, outboundQueueTimeout)
		defer cancel()
		msg := bus.OutboundMessage{Channel: trovoChannelName, ChannelID: channelID, Content: text}
		if !mb.PublishOutbound(ctx, msg) {
			return errors.New("bridge is not accepting messages")
		}
		return nil
	}
}
