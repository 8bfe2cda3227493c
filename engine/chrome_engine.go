package engine

import "context"

// ChromeFetchFunc navigates a browser page and returns the rendered result.
// The chrome package supplies this callback; the indirection keeps engine/
// free of a browser dependency (and of an import cycle).
type ChromeFetchFunc func(ctx context.Context, req *Request) (*Result, error)

// ChromeEngine renders pages in a headless browser.
type ChromeEngine struct {
	fetch   ChromeFetchFunc
	stealth bool
}

// NewChromeEngine creates a ChromeEngine backed by the given fetch callback.
// When stealth is set, every request is fetched with stealth JS injected.
func NewChromeEngine(fetch ChromeFetchFunc, stealth bool) *ChromeEngine {
	return &ChromeEngine{fetch: fetch, stealth: stealth}
}

func (e *ChromeEngine) Name() string {
	if e.stealth {
		return "chrome-stealth"
	}
	return "chrome"
}

func (e *ChromeEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if e.stealth {
		r := *req
		r.Stealth = true
		req = &r
	}
	result, err := e.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	result.EngineName = e.Name()
	return result, nil
}
