package content

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown bodies to HTML. It is stateless after
// construction and safe for reuse across files without locking.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer returns a renderer configured for blog prose: GitHub-flavored
// markdown, automatic heading IDs, and raw HTML passed through. Posts are
// authored locally, so unsafe rendering is the intended behavior.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				gmhtml.WithUnsafe(),
			),
		),
	}
}

// Render converts markdown source to HTML.
func (r *Renderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
