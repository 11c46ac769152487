package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trovobridge/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"gateway"},
	Short:   "Run the chat bridge",
	Long: "Runs the Trovo chat bridge with health and readiness endpoints. With the " +
		"replay transport it exits once the capture has been fully handled.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		b, err := newBridge(cfg, cmd.OutOrStdout(), log)
		if err != nil {
			log.Error("Bridge configuration invalid", "error", err)
			return err
		}
		defer b.Close()

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Bridge started",
			"channels", enabledChannelNames(b.adapters),
			"transport", cfg.Transport.Kind,
			"dispatch", cfg.Dispatch.Mode,
			"status", cfg.Gateway.Address(),
		)
		if err := b.service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Bridge runtime failed", "error", err)
			return err
		}
		if b.trovo != nil {
			stats := b.trovo.Stats()
			log.Info("Bridge stopped", "frames", stats.Frames, "dispatched", stats.Dispatched, "sent", stats.Sent, "dropped", stats.Dropped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
