// Package transform converts crawled pages into consumer formats: markdown,
// readability-extracted HTML, or plain text.
package transform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/abdulrahman305/spider/models"
)

// Format selects the output representation.
type Format string

const (
	// FormatMarkdown renders the page as markdown.
	FormatMarkdown Format = "markdown"

	// FormatReadability extracts the main article content as clean HTML.
	FormatReadability Format = "readability"

	// FormatText strips every tag, leaving visible text.
	FormatText Format = "text"

	// FormatHTML returns the body unchanged.
	FormatHTML Format = "html"
)

// Transformer converts pages. It is safe for concurrent use; the markdown
// converter is reusable and goroutine-safe.
type Transformer struct {
	conv *converter.Converter
}

// New creates a Transformer.
func New() *Transformer {
	return &Transformer{conv: newMarkdownConverter()}
}

// newMarkdownConverter creates a reusable Converter:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta, link,
//     input, textarea, and HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: preserves table structure with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Content renders the page body in the requested format. Non-HTML pages pass
// through untouched regardless of format.
func (t *Transformer) Content(page *models.Page, format Format) (string, error) {
	if !page.IsHTML() {
		return page.HTML(), nil
	}

	switch format {
	case FormatMarkdown, "":
		domain := ""
		if u, err := url.Parse(page.URL); err == nil {
			domain = u.Scheme + "://" + u.Host
		}
		return t.conv.ConvertString(page.HTML(), converter.WithDomain(domain))
	case FormatReadability:
		article, _ := extractArticle(page.HTML(), page.URL)
		return article.Content, nil
	case FormatText:
		return visibleText(page.HTML()), nil
	case FormatHTML:
		return page.HTML(), nil
	default:
		return "", fmt.Errorf("transform: unknown format %q", format)
	}
}

// visibleText strips tags and collapses whitespace.
func visibleText(htmlContent string) string {
	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return b.String()
}
