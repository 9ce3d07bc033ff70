package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
)

var loginFlags struct {
	headless bool
	state    string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in once and store the browser auth state",
	Long: `Open one browser session, sign in with CHAT_EMAIL and CHAT_PASSWORD and write
the resulting cookies to AUTH_STATE_PATH. Later sessions reuse that state and
skip the login form.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginFlags.headless, "headless", false, "hide the browser window")
	loginCmd.Flags().StringVar(&loginFlags.state, "state", "", "auth state file (overrides AUTH_STATE_PATH)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Chat.LoginStrategy = string(conversation.LoginInteractive)
	cfg.Browser.Headless = loginFlags.headless
	if loginFlags.state != "" {
		cfg.Chat.AuthStatePath = loginFlags.state
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	driver, err := browser.New(cfg.Browser.Driver, cfg.Browser.Bin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return login(ctx, driver, opts, logger.Component("login"), cmd)
}

func login(ctx context.Context, driver browser.Driver, opts conversation.Options, logger *zap.Logger, cmd *cobra.Command) error {
	if opts.AuthStatePath == "" {
		return fmt.Errorf("AUTH_STATE_PATH is empty, nowhere to store the login")
	}
	opts.RequireStateSave = true

	sess := conversation.New("login", driver, opts, logger)
	defer sess.Stop()

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in, auth state saved to %s\n", opts.AuthStatePath)
	return nil
}
