package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage(""))
	assert.NoError(t, ValidateMessage("What do my sources say about Go?"))
	assert.Error(t, ValidateMessage(strings.Repeat("a", MaxMessageSize+1)))
	assert.Error(t, ValidateMessage("bad\x00byte"))
	assert.Error(t, ValidateMessage(string([]byte{0xff, 0xfe})))
}

func TestValidateString(t *testing.T) {
	assert.NoError(t, ValidateString("", "name", 1, 10, false))
	assert.Error(t, ValidateString("", "name", 1, 10, true))
	assert.Error(t, ValidateString("toolongvalue", "name", 1, 10, true))
	assert.Error(t, ValidateString("ab", "name", 3, 10, true))
}
