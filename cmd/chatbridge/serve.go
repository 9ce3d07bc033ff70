package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/server"
)

var serveFlags struct {
	port   string
	host   string
	driver string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.port, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "listen host (overrides HOST)")
	serveCmd.Flags().StringVar(&serveFlags.driver, "driver", "", "browser driver: playwright or rod (overrides BROWSER_DRIVER)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.port != "" {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.host != "" {
		cfg.Server.Host = serveFlags.host
	}
	if serveFlags.driver != "" {
		cfg.Browser.Driver = serveFlags.driver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	driver, err := browser.New(cfg.Browser.Driver, cfg.Browser.Bin)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, driver, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down gracefully", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
