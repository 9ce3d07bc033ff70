package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/chatbridge/internal/browser"
	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
	"github.com/GriffinCanCode/chatbridge/internal/domain/session"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/resilience"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Browser   BrowserConfig
	Chat      ChatConfig
	Exchange  ExchangeConfig
	Sessions  SessionsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"10000"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	Gzip            bool          `envconfig:"GZIP" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	// Scope is "ip" for a bucket per client or "global" for one shared bucket
	Scope string `envconfig:"RATE_LIMIT_SCOPE" default:"ip"`
}

// Rate limit scopes
const (
	RateLimitPerIP  = "ip"
	RateLimitGlobal = "global"
)

// BrowserConfig selects and launches the automation driver.
type BrowserConfig struct {
	Driver   string `envconfig:"BROWSER_DRIVER" default:"playwright"`
	Headless bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	// Bin is the Chrome binary for the rod driver; empty lets the launcher find one
	Bin string `envconfig:"BROWSER_BIN"`
}

// ChatConfig describes the chat page and how to authenticate against it.
type ChatConfig struct {
	TargetURL        string        `envconfig:"TARGET_URL" default:"https://notebooklm.google.com/notebook/fef71e75-6992-48b7-8912-6955b19c99d9"`
	AuthStatePath    string        `envconfig:"AUTH_STATE_PATH" default:"auth_state.json"`
	LoginStrategy    string        `envconfig:"LOGIN_STRATEGY" default:"none"`
	Email            string        `envconfig:"CHAT_EMAIL"`
	Password         string        `envconfig:"CHAT_PASSWORD"`
	ReadyTimeout     time.Duration `envconfig:"READY_TIMEOUT" default:"30s"`
	LoginStepTimeout time.Duration `envconfig:"LOGIN_STEP_TIMEOUT" default:"30s"`
	ExpectedTitle    string        `envconfig:"EXPECTED_TITLE"`
	SelectorsFile    string        `envconfig:"SELECTORS_FILE"`
}

// ExchangeConfig tunes reply polling.
type ExchangeConfig struct {
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"750ms"`
	FirstTokenInterval time.Duration `envconfig:"FIRST_TOKEN_INTERVAL" default:"200ms"`
	FirstTokenAttempts int           `envconfig:"FIRST_TOKEN_ATTEMPTS" default:"200"`
	StableReads        int           `envconfig:"STABLE_READS" default:"5"`
	MaxDuration        time.Duration `envconfig:"EXCHANGE_MAX_DURATION" default:"0"`
}

// SessionsConfig bounds the session registry.
type SessionsConfig struct {
	MaxSessions     int           `envconfig:"MAX_SESSIONS" default:"0"`
	IdleTimeout     time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"0"`
	BreakerFailures uint32        `envconfig:"LAUNCH_BREAKER_FAILURES" default:"3"`
	BreakerCooldown time.Duration `envconfig:"LAUNCH_BREAKER_COOLDOWN" default:"30s"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	d := conversation.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Port:            "10000",
			Host:            "127.0.0.1",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 15 * time.Second,
			Gzip:            true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Scope:             RateLimitPerIP,
		},
		Browser: BrowserConfig{
			Driver:   browser.DriverPlaywright,
			Headless: true,
		},
		Chat: ChatConfig{
			TargetURL:        d.TargetURL,
			AuthStatePath:    d.AuthStatePath,
			LoginStrategy:    string(conversation.LoginNone),
			ReadyTimeout:     d.ReadyTimeout,
			LoginStepTimeout: d.LoginStepTimeout,
		},
		Exchange: ExchangeConfig{
			PollInterval:       d.Exchange.PollInterval,
			FirstTokenInterval: d.Exchange.FirstTokenInterval,
			FirstTokenAttempts: d.Exchange.FirstTokenAttempts,
			StableReads:        d.Exchange.StableReads,
		},
		Sessions: SessionsConfig{
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT %q is not a valid port", c.Server.Port))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	switch c.RateLimit.Scope {
	case RateLimitPerIP, RateLimitGlobal:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_SCOPE must be %q or %q, got %q", RateLimitPerIP, RateLimitGlobal, c.RateLimit.Scope))
	}

	switch c.Browser.Driver {
	case browser.DriverPlaywright, browser.DriverRod:
	default:
		errs = append(errs, fmt.Errorf("BROWSER_DRIVER %q: %w", c.Browser.Driver, browser.ErrUnknownDriver))
	}

	if u, err := url.Parse(c.Chat.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("TARGET_URL %q must be an absolute http(s) URL", c.Chat.TargetURL))
	}
	strategy, err := conversation.ParseLoginStrategy(c.Chat.LoginStrategy)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOGIN_STRATEGY: %w", err))
	}
	if strategy == conversation.LoginInteractive && (c.Chat.Email == "" || c.Chat.Password == "") {
		errs = append(errs, errors.New("LOGIN_STRATEGY=interactive requires CHAT_EMAIL and CHAT_PASSWORD"))
	}
	if c.Chat.ReadyTimeout <= 0 || c.Chat.LoginStepTimeout <= 0 {
		errs = append(errs, errors.New("READY_TIMEOUT and LOGIN_STEP_TIMEOUT must be positive"))
	}

	if c.Exchange.PollInterval <= 0 || c.Exchange.FirstTokenInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL and FIRST_TOKEN_INTERVAL must be positive"))
	}
	if c.Exchange.FirstTokenAttempts < 1 || c.Exchange.StableReads < 1 {
		errs = append(errs, errors.New("FIRST_TOKEN_ATTEMPTS and STABLE_READS must be at least 1"))
	}
	if c.Exchange.MaxDuration < 0 {
		errs = append(errs, errors.New("EXCHANGE_MAX_DURATION must not be negative"))
	}

	if c.Sessions.MaxSessions < 0 || c.Sessions.IdleTimeout < 0 {
		errs = append(errs, errors.New("MAX_SESSIONS and SESSION_IDLE_TIMEOUT must not be negative"))
	}
	if c.Sessions.BreakerFailures < 1 || c.Sessions.BreakerCooldown <= 0 {
		errs = append(errs, errors.New("LAUNCH_BREAKER_FAILURES and LAUNCH_BREAKER_COOLDOWN must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// SessionOptions builds the options every new session uses, loading the
// selectors file when one is configured.
func (c *Config) SessionOptions() (conversation.Options, error) {
	strategy, err := conversation.ParseLoginStrategy(c.Chat.LoginStrategy)
	if err != nil {
		return conversation.Options{}, err
	}

	selectors := conversation.DefaultSelectors()
	if c.Chat.SelectorsFile != "" {
		if selectors, err = LoadSelectors(c.Chat.SelectorsFile); err != nil {
			return conversation.Options{}, err
		}
	}

	opts := conversation.Options{
		TargetURL:        c.Chat.TargetURL,
		AuthStatePath:    c.Chat.AuthStatePath,
		LoginStrategy:    strategy,
		Selectors:        selectors,
		Headless:         c.Browser.Headless,
		ReadyTimeout:     c.Chat.ReadyTimeout,
		LoginStepTimeout: c.Chat.LoginStepTimeout,
		ExpectedTitle:    c.Chat.ExpectedTitle,
		Exchange: conversation.ExchangeConfig{
			PollInterval:       c.Exchange.PollInterval,
			FirstTokenInterval: c.Exchange.FirstTokenInterval,
			FirstTokenAttempts: c.Exchange.FirstTokenAttempts,
			StableReads:        c.Exchange.StableReads,
			MaxDuration:        c.Exchange.MaxDuration,
		},
	}
	if c.Chat.Email != "" || c.Chat.Password != "" {
		opts.Credentials = &conversation.Credentials{Email: c.Chat.Email, Password: c.Chat.Password}
	}
	return opts, nil
}

// ManagerConfig bounds the session registry and its launch breaker.
func (c *Config) ManagerConfig() session.Config {
	return session.Config{
		MaxSessions: c.Sessions.MaxSessions,
		IdleTimeout: c.Sessions.IdleTimeout,
		Breaker: resilience.Settings{
			Trip:     resilience.ConsecutiveFailures(c.Sessions.BreakerFailures),
			Cooldown: c.Sessions.BreakerCooldown,
		},
	}
}
