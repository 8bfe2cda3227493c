package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks pulls candidate crawl URLs out of an HTML body: <a href>,
// <area href>, <link rel=canonical>, and optionally <iframe src>. URLs are
// resolved against the document's <base href> when present, else against
// base, fragments stripped, duplicates removed. Anchors and areas come first
// in document order, then canonical links, then iframes.
func ExtractLinks(body []byte, base *url.URL, includeIframes bool) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	resolveBase := base
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if parsed, parseErr := base.Parse(href); parseErr == nil {
			resolveBase = parsed
		}
	}

	var links []string
	seen := make(map[string]struct{})

	collect := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") ||
			strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") ||
			strings.HasPrefix(raw, "tel:") || strings.HasPrefix(raw, "data:") {
			return
		}
		resolved, parseErr := resolveBase.Parse(raw)
		if parseErr != nil {
			return
		}
		resolved.Fragment = ""
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			collect(href)
		}
	})
	doc.Find(`link[rel="canonical"][href]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			collect(href)
		}
	})
	if includeIframes {
		doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
			if src, ok := sel.Attr("src"); ok {
				collect(src)
			}
		})
	}

	return links
}
