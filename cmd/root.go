package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trovobridge/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trovobridge",
	Short: "Bridge Trovo live chat into a bot pipeline",
	Long: "Reads Trovo chat frames from a WebSocket or a replay capture, turns chat " +
		"messages into activities for a middleware pipeline, and renders replies back into chat.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $TROVOBRIDGE_CONFIG or ./config.json)")
}

func loadConfig() (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}
