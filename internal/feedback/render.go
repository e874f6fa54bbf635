// Package feedback renders evaluator feedback for display.
package feedback

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown feedback to HTML. Raw HTML in the input is
// dropped. Safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GitHub-flavored markdown enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render returns the HTML for markdown. Empty input renders as "".
func (r *Renderer) Render(markdown string) (string, error) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render feedback: %w", err)
	}
	return buf.String(), nil
}

// RenderPtr renders an optional feedback string.
func (r *Renderer) RenderPtr(markdown *string) (string, error) {
	if markdown == nil {
		return "", nil
	}
	return r.Render(*markdown)
}
