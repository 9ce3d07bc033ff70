package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/chatbridge/internal/domain/conversation"
)

// selectorsFile is the on-disk shape of a selector override. Empty fields keep
// the defaults.
type selectorsFile struct {
	ChatInput     string `yaml:"chat_input" toml:"chat_input"`
	ReplyText     string `yaml:"reply_text" toml:"reply_text"`
	LoginEmail    string `yaml:"login_email" toml:"login_email"`
	EmailNext     string `yaml:"email_next" toml:"email_next"`
	LoginPassword string `yaml:"login_password" toml:"login_password"`
	PasswordNext  string `yaml:"password_next" toml:"password_next"`
}

// LoadSelectors reads a YAML (.yaml, .yml) or TOML (.toml) selector file and
// merges it over the defaults.
func LoadSelectors(path string) (conversation.Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return conversation.Selectors{}, fmt.Errorf("read selectors file: %w", err)
	}

	var f selectorsFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		return conversation.Selectors{}, fmt.Errorf("selectors file %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}
	if err != nil {
		return conversation.Selectors{}, fmt.Errorf("parse selectors file %s: %w", path, err)
	}

	s := conversation.DefaultSelectors()
	override(&s.ChatInput, f.ChatInput)
	override(&s.ReplyText, f.ReplyText)
	override(&s.LoginEmail, f.LoginEmail)
	override(&s.EmailNext, f.EmailNext)
	override(&s.LoginPassword, f.LoginPassword)
	override(&s.PasswordNext, f.PasswordNext)
	return s, nil
}

func override(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
