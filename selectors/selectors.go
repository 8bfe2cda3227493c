// Package selectors compiles user-supplied query selectors and extracts
// matching content from HTML documents. Selectors parse as CSS first; ones
// that fail CSS parsing but compile as XPath route to the XPath engine, and
// everything else is dropped with a warning.
package selectors

import (
	"log/slog"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// DocumentSelectors holds compiled selectors grouped by result name.
type DocumentSelectors struct {
	CSS   map[string][]cascadia.Selector
	XPath map[string][]string
}

// Empty reports whether no selector survived compilation.
func (s DocumentSelectors) Empty() bool {
	return len(s.CSS) == 0 && len(s.XPath) == 0
}

// Build compiles the given name → selector-list map. Each selector lands in
// the CSS bucket, the XPath bucket, or nowhere.
func Build(input map[string][]string) DocumentSelectors {
	result := DocumentSelectors{
		CSS:   make(map[string][]cascadia.Selector),
		XPath: make(map[string][]string),
	}

	for name, list := range input {
		for _, raw := range list {
			if sel, err := cascadia.Compile(raw); err == nil {
				result.CSS[name] = append(result.CSS[name], sel)
				continue
			}
			if _, err := xpath.Compile(raw); err == nil {
				result.XPath[name] = append(result.XPath[name], raw)
				continue
			}
			slog.Warn("failed to parse selector", "name", name, "selector", raw)
		}
	}
	return result
}

// QuerySelectMap runs every compiled selector against the document and
// returns the extracted strings per name, deduplicated, in match order.
func QuerySelectMap(htmlContent string, selectors DocumentSelectors) map[string][]string {
	result := make(map[string][]string)
	if selectors.Empty() {
		return result
	}

	if len(selectors.CSS) > 0 {
		if root, err := html.Parse(strings.NewReader(htmlContent)); err == nil {
			for name, sels := range selectors.CSS {
				for _, sel := range sels {
					for _, node := range cascadia.Selector(sel).MatchAll(root) {
						if text := nodeContent(node); text != "" {
							result[name] = append(result[name], text)
						}
					}
				}
			}
		}
	}

	if len(selectors.XPath) > 0 {
		if root, err := htmlquery.Parse(strings.NewReader(htmlContent)); err == nil {
			for name, exprs := range selectors.XPath {
				for _, expr := range exprs {
					nodes, err := htmlquery.QueryAll(root, expr)
					if err != nil {
						continue
					}
					for _, node := range nodes {
						if text := strings.TrimSpace(htmlquery.InnerText(node)); text != "" {
							result[name] = append(result[name], text)
						}
					}
				}
			}
		}
	}

	for name, values := range result {
		result[name] = dedupe(values)
	}
	return result
}

// nodeContent extracts the useful string from a matched element: attribute
// values for meta/link/script, a bracketed src plus alt for images, visible
// text otherwise.
func nodeContent(node *html.Node) string {
	switch node.Data {
	case "meta":
		return attr(node, "content")
	case "link":
		if href := attr(node, "href"); href != "" {
			return href
		}
	case "script":
		if src := attr(node, "src"); src != "" {
			return src
		}
	case "img", "source":
		var b strings.Builder
		if src := attr(node, "src"); src != "" {
			b.WriteByte('[')
			b.WriteString(strings.TrimSpace(src))
			b.WriteByte(']')
		}
		if alt := attr(node, "alt"); alt != "" {
			if b.Len() == 0 {
				b.WriteString(alt)
			} else {
				b.WriteString(`("`)
				b.WriteString(alt)
				b.WriteString(`")`)
			}
		}
		return b.String()
	}
	return strings.TrimSpace(collectText(node))
}

func attr(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collectText(node *html.Node) string {
	var parts []string
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			if text := strings.TrimSpace(child.Data); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		if text := collectText(child); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := values[:0]
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
