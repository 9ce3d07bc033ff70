package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replyHTML = `
<div class="message-text-content">
	<p>First   paragraph with <b>bold</b> text.</p>
	<script>alert("x")</script>
	<ul><li>one</li><li>two</li></ul>
	<a href="https://example.com" onclick="steal()">link</a>
</div>`

func TestSanitizeHTML(t *testing.T) {
	out, err := SanitizeHTML(replyHTML)
	require.NoError(t, err)

	assert.Contains(t, out, "<b>bold</b>")
	assert.Contains(t, out, "<li>one</li>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onclick")
}

func TestPlainText(t *testing.T) {
	out, err := PlainText(replyHTML)
	require.NoError(t, err)

	assert.Contains(t, out, "First paragraph with bold text.")
	assert.Contains(t, out, "one\ntwo")
	assert.NotContains(t, out, "alert")
	assert.False(t, strings.HasPrefix(out, "\n"))
}

func TestRejectsOversizedMarkup(t *testing.T) {
	big := strings.Repeat("a", MaxHTMLSize+1)

	_, err := SanitizeHTML(big)
	assert.Error(t, err)

	_, err = PlainText(big)
	assert.Error(t, err)
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat(""))
	assert.True(t, ValidFormat(FormatText))
	assert.True(t, ValidFormat(FormatHTML))
	assert.False(t, ValidFormat("markdown"))
}
