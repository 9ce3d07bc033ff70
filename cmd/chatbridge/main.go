package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/logging"
)

var (
	// Global flags
	logLevel string
	dev      bool
)

var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: "Expose a browser-hosted chat application as an HTTP API",
	Long: `chatbridge opens a real browser on a chat web application, types messages into
it and reads the streamed replies back, one browser per session.

Configuration is read from the environment; flags override it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "development logging")

	rootCmd.AddCommand(serveCmd, loginCmd, chatCmd)
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dev {
		cfg.Logging.Development = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
