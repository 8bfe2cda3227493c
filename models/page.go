package models

import (
	"net/http"
	"strings"
)

// Redirect is one hop of a redirect chain: the URL that answered and the
// status it answered with.
type Redirect struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// Page is the artifact produced for every fetched URL. It is immutable once
// published to subscribers.
type Page struct {
	// URL is the final URL after any redirects.
	URL string `json:"url"`

	// RequestURL is the URL that was originally dispatched.
	RequestURL string `json:"request_url"`

	// StatusCode is the HTTP status of the final response. Zero when the
	// fetch never produced a response.
	StatusCode int `json:"status_code"`

	// Headers are the final response headers.
	Headers http.Header `json:"headers,omitempty"`

	// Body is the raw response body. Empty for failed fetches.
	Body []byte `json:"-"`

	// ContentType is the final response content type.
	ContentType string `json:"content_type,omitempty"`

	// BytesTransferred counts bytes received over the wire, including
	// subresources when the page was rendered by a browser.
	BytesTransferred int64 `json:"bytes_transferred"`

	// Links holds the absolute URLs extracted from the body, in the order
	// crawler.ExtractLinks returns them, when link extraction ran for this page.
	Links []string `json:"links,omitempty"`

	// FailureText describes a permanent fetch failure. Empty on success.
	FailureText string `json:"failure_text,omitempty"`

	// RedirectChain lists the prior hops, oldest first.
	RedirectChain []Redirect `json:"redirect_chain,omitempty"`

	// Depth is the link distance from the seed.
	Depth int `json:"depth"`
}

// IsHTML reports whether the page body should be parsed for links.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// Failed reports whether the fetch ended in a permanent failure.
func (p *Page) Failed() bool {
	return p.FailureText != ""
}

// HTML returns the body as a string.
func (p *Page) HTML() string {
	return string(p.Body)
}
