// Package render converts captured reply markup into safe HTML or plain text.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/atom"
)

// Supported reply formats
const (
	FormatText = "text"
	FormatHTML = "html"
)

// MaxHTMLSize limits captured markup to 2MB
const MaxHTMLSize = 2 * 1024 * 1024

var (
	sanitizer  = bluemonday.UGCPolicy()
	whitespace = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// blockElements end a line of plain text
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true,
}

// ValidFormat reports whether format is empty or a known format.
func ValidFormat(format string) bool {
	return format == "" || format == FormatText || format == FormatHTML
}

// SanitizeHTML strips scripts, handlers and unknown tags from reply markup.
func SanitizeHTML(markup string) (string, error) {
	if len(markup) > MaxHTMLSize {
		return "", fmt.Errorf("reply markup too large: %d bytes (max %d)", len(markup), MaxHTMLSize)
	}
	return sanitizer.Sanitize(markup), nil
}

// PlainText extracts visible text from reply markup, one block element per line.
func PlainText(markup string) (string, error) {
	if len(markup) > MaxHTMLSize {
		return "", fmt.Errorf("reply markup too large: %d bytes (max %d)", len(markup), MaxHTMLSize)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse reply markup: %w", err)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if blockElements[s.Nodes[0].DataAtom] {
			s.AppendHtml("\n")
		}
	})
	return normalize(doc.Text()), nil
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(joined, "\n\n"))
}
