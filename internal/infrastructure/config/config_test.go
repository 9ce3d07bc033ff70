package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
	"github.com/GriffinCanCode/chatbridge/internal/infrastructure/resilience"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Chat, cfg.Chat)
	assert.Equal(t, d.Exchange, cfg.Exchange)
	assert.Equal(t, d.Sessions, cfg.Sessions)
	assert.Equal(t, d.Browser, cfg.Browser)
	assert.Equal(t, 750*time.Millisecond, cfg.Exchange.PollInterval)
	assert.Equal(t, 5, cfg.Exchange.StableReads)
	assert.Zero(t, cfg.Exchange.MaxDuration)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BROWSER_DRIVER", "rod")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("LOGIN_STRATEGY", "interactive")
	t.Setenv("CHAT_EMAIL", "me@example.com")
	t.Setenv("CHAT_PASSWORD", "secret")
	t.Setenv("POLL_INTERVAL", "1s")
	t.Setenv("EXCHANGE_MAX_DURATION", "5m")
	t.Setenv("MAX_SESSIONS", "4")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, cfg.Server.Host+":9000", cfg.Addr())
	assert.Equal(t, "rod", cfg.Browser.Driver)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, time.Second, cfg.Exchange.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Exchange.MaxDuration)
	assert.Equal(t, 4, cfg.Sessions.MaxSessions)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Server.CORSOrigins)

	opts, err := cfg.SessionOptions()
	require.NoError(t, err)
	assert.Equal(t, conversation.LoginInteractive, opts.LoginStrategy)
	assert.True(t, opts.Credentials.Complete())
	assert.False(t, opts.Headless)
	assert.Equal(t, 5*time.Minute, opts.Exchange.MaxDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "PORT"},
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }, "BROWSER_DRIVER"},
		{"relative target", func(c *Config) { c.Chat.TargetURL = "/notebook/1" }, "TARGET_URL"},
		{"unknown strategy", func(c *Config) { c.Chat.LoginStrategy = "oauth" }, "LOGIN_STRATEGY"},
		{"interactive without credentials", func(c *Config) { c.Chat.LoginStrategy = "interactive" }, "CHAT_EMAIL"},
		{"zero poll interval", func(c *Config) { c.Exchange.PollInterval = 0 }, "POLL_INTERVAL"},
		{"zero stable reads", func(c *Config) { c.Exchange.StableReads = 0 }, "STABLE_READS"},
		{"negative max duration", func(c *Config) { c.Exchange.MaxDuration = -time.Second }, "EXCHANGE_MAX_DURATION"},
		{"rate limit without rps", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}, "RATE_LIMIT_RPS"},
		{"unknown rate limit scope", func(c *Config) { c.RateLimit.Scope = "user" }, "RATE_LIMIT_SCOPE"},
		{"negative max sessions", func(c *Config) { c.Sessions.MaxSessions = -1 }, "MAX_SESSIONS"},
		{"zero breaker failures", func(c *Config) { c.Sessions.BreakerFailures = 0 }, "LAUNCH_BREAKER_FAILURES"},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("STABLE_READS", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "STABLE_READS")

	t.Setenv("STABLE_READS", "five")
	_, err = Load()
	assert.ErrorContains(t, err, "failed to load config")
}

func TestManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Sessions.MaxSessions = 2
	cfg.Sessions.IdleTimeout = time.Hour

	mc := cfg.ManagerConfig()
	assert.Equal(t, 2, mc.MaxSessions)
	assert.Equal(t, time.Hour, mc.IdleTimeout)
	assert.Equal(t, 30*time.Second, mc.Breaker.Cooldown)
	require.NotNil(t, mc.Breaker.Trip)
	assert.False(t, mc.Breaker.Trip(resilience.Counts{ConsecutiveFailures: 2}))
	assert.True(t, mc.Breaker.Trip(resilience.Counts{ConsecutiveFailures: 3}))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSelectorsYAML(t *testing.T) {
	path := writeFile(t, "selectors.yaml", `
chat_input: "textarea.query-box"
reply_text: ".answer .text"
`)
	s, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, "textarea.query-box", s.ChatInput)
	assert.Equal(t, ".answer .text", s.ReplyText)
	assert.Equal(t, conversation.DefaultSelectors().LoginEmail, s.LoginEmail)
}

func TestLoadSelectorsTOML(t *testing.T) {
	path := writeFile(t, "selectors.toml", `
login_email = "#email"
password_next = "#pw-next"
`)
	s, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, "#email", s.LoginEmail)
	assert.Equal(t, "#pw-next", s.PasswordNext)
	assert.Equal(t, conversation.DefaultSelectors().ChatInput, s.ChatInput)
}

func TestLoadSelectorsErrors(t *testing.T) {
	_, err := LoadSelectors(writeFile(t, "selectors.json", `{}`))
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = LoadSelectors(writeFile(t, "selectors.toml", `chat_input = `))
	assert.ErrorContains(t, err, "parse selectors file")

	_, err = LoadSelectors(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read selectors file")
}

func TestSessionOptionsUsesSelectorsFile(t *testing.T) {
	cfg := Default()
	cfg.Chat.SelectorsFile = writeFile(t, "s.yml", "reply_text: .reply\n")

	opts, err := cfg.SessionOptions()
	require.NoError(t, err)
	assert.Equal(t, ".reply", opts.Selectors.ReplyText)
	assert.Nil(t, opts.Credentials)

	cfg.Chat.SelectorsFile = "missing.toml"
	_, err = cfg.SessionOptions()
	assert.Error(t, err)
}
