package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageSize limits a single chat message to 16KB
const MaxMessageSize = 16 * 1024

// ValidateString checks length and rejects NUL bytes. An empty optional
// value is always valid.
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateMessage checks a chat message. Empty messages are allowed and are
// submitted as-is.
func ValidateMessage(message string) error {
	if len(message) > MaxMessageSize {
		return fmt.Errorf("message must not exceed %d bytes", MaxMessageSize)
	}
	if !utf8.ValidString(message) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	return ValidateString(message, "message", 0, MaxMessageSize, false)
}
