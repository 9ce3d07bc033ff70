package conversation

import (
	"fmt"
	"time"
)

// DefaultTargetURL is the notebook chat page driven when none is configured.
const DefaultTargetURL = "https://notebooklm.google.com/notebook/fef71e75-6992-48b7-8912-6955b19c99d9"

// Default timings
const (
	DefaultReadyTimeout       = 30 * time.Second
	DefaultLoginStepTimeout   = 30 * time.Second
	DefaultPollInterval       = 750 * time.Millisecond
	DefaultFirstTokenInterval = 200 * time.Millisecond
	DefaultFirstTokenAttempts = 200
	DefaultStableReads        = 5
)

// LoginStrategy selects what Start does when the page asks for a login.
type LoginStrategy string

const (
	// LoginNone fails Start with ErrAuthRequired
	LoginNone LoginStrategy = "none"
	// LoginInteractive enters the configured credentials
	LoginInteractive LoginStrategy = "interactive"
)

// ParseLoginStrategy validates a strategy name.
func ParseLoginStrategy(s string) (LoginStrategy, error) {
	switch LoginStrategy(s) {
	case "", LoginNone:
		return LoginNone, nil
	case LoginInteractive:
		return LoginInteractive, nil
	default:
		return "", fmt.Errorf("invalid login strategy %q (want none or interactive)", s)
	}
}

// Credentials for interactive login.
type Credentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set.
func (c *Credentials) Complete() bool {
	return c != nil && c.Email != "" && c.Password != ""
}

// Selectors are the CSS selectors used against the chat page.
type Selectors struct {
	ChatInput     string
	ReplyText     string
	LoginEmail    string
	EmailNext     string
	LoginPassword string
	PasswordNext  string
}

// DefaultSelectors returns the selectors for the NotebookLM chat page and the
// Google sign-in form.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatInput:     ".message-container input, .message-container textarea",
		ReplyText:     ".to-user-message-card-content .message-text-content",
		LoginEmail:    "input[type='email']",
		EmailNext:     "#identifierNext button",
		LoginPassword: "input[type='password']",
		PasswordNext:  "#passwordNext button",
	}
}

// readiness is the selector list Start waits on.
func (s Selectors) readiness() string {
	return s.ChatInput + ", " + s.LoginEmail
}

// ExchangeConfig tunes the reply polling loop.
type ExchangeConfig struct {
	PollInterval       time.Duration
	FirstTokenInterval time.Duration
	FirstTokenAttempts int
	StableReads        int

	// MaxDuration bounds a whole exchange. Zero leaves the streaming loop
	// unbounded; it then only ends on stability or context cancellation.
	MaxDuration time.Duration
}

// DefaultExchangeConfig returns the standard polling cadence.
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		PollInterval:       DefaultPollInterval,
		FirstTokenInterval: DefaultFirstTokenInterval,
		FirstTokenAttempts: DefaultFirstTokenAttempts,
		StableReads:        DefaultStableReads,
	}
}

// Options configures a Session.
type Options struct {
	TargetURL     string
	Credentials   *Credentials
	AuthStatePath string
	LoginStrategy LoginStrategy
	Selectors     Selectors
	Headless      bool

	ReadyTimeout     time.Duration
	LoginStepTimeout time.Duration

	// ExpectedTitle, when set, must be a substring of the page title once ready
	ExpectedTitle string

	// RequireStateSave fails Start when the auth state cannot be written
	RequireStateSave bool

	Exchange ExchangeConfig
}

// DefaultOptions returns options for a headless, passive-login session.
func DefaultOptions() Options {
	return Options{
		TargetURL:        DefaultTargetURL,
		AuthStatePath:    "auth_state.json",
		LoginStrategy:    LoginNone,
		Selectors:        DefaultSelectors(),
		Headless:         true,
		ReadyTimeout:     DefaultReadyTimeout,
		LoginStepTimeout: DefaultLoginStepTimeout,
		Exchange:         DefaultExchangeConfig(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetURL == "" {
		o.TargetURL = d.TargetURL
	}
	if o.LoginStrategy == "" {
		o.LoginStrategy = d.LoginStrategy
	}
	if o.Selectors == (Selectors{}) {
		o.Selectors = d.Selectors
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.LoginStepTimeout <= 0 {
		o.LoginStepTimeout = d.LoginStepTimeout
	}
	if o.Exchange.PollInterval <= 0 {
		o.Exchange.PollInterval = d.Exchange.PollInterval
	}
	if o.Exchange.FirstTokenInterval <= 0 {
		o.Exchange.FirstTokenInterval = d.Exchange.FirstTokenInterval
	}
	if o.Exchange.FirstTokenAttempts <= 0 {
		o.Exchange.FirstTokenAttempts = d.Exchange.FirstTokenAttempts
	}
	if o.Exchange.StableReads <= 0 {
		o.Exchange.StableReads = d.Exchange.StableReads
	}
	return o
}
