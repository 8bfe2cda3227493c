// Package engine provides the fetch engines the crawler dispatches to: a
// pure HTTP engine with a Chrome TLS fingerprint, a browser engine, and a
// smart dispatcher that escalates from the former to the latter when a page
// needs JavaScript.
package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/abdulrahman305/spider/models"
)

// Engine is the interface that all fetch engines implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "chrome").
	Name() string

	// Fetch retrieves the page content for the given request. An error is
	// returned only for transport-level failures; HTTP error statuses come
	// back as a Result.
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// Request contains everything an engine needs to fetch a page.
type Request struct {
	URL       string
	Headers   map[string]string
	UserAgent string
	Timeout   time.Duration
	Stealth   bool
}

// Result is the output of an engine fetch.
type Result struct {
	Body             []byte
	StatusCode       int
	Headers          http.Header
	ContentType      string
	FinalURL         string
	BytesTransferred int64
	RedirectChain    []models.Redirect
	EngineName       string
}
