package engine

import (
	"context"
	"log/slog"
	"net/url"
)

// Dispatcher picks an engine per request. In smart mode it tries the HTTP
// engine first and escalates to the browser when the fetch fails or the body
// looks like a JavaScript shell; the winning engine is remembered per domain.
type Dispatcher struct {
	httpEngine   Engine
	chromeEngine Engine // nil when no browser is configured
	memory       *DomainMemory
	smart        bool
}

// NewDispatcher creates a Dispatcher. chromeEngine may be nil; memory may be
// nil when smart is false.
func NewDispatcher(httpEngine, chromeEngine Engine, memory *DomainMemory, smart bool) *Dispatcher {
	return &Dispatcher{
		httpEngine:   httpEngine,
		chromeEngine: chromeEngine,
		memory:       memory,
		smart:        smart,
	}
}

// Dispatch fetches req through the appropriate engine.
//
// Selection order:
//  1. No browser configured → HTTP engine.
//  2. Smart mode off → browser engine (it was configured for a reason).
//  3. Smart mode: remembered engine for the domain, else HTTP first with
//     browser escalation when the result needs JavaScript.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	if d.chromeEngine == nil {
		return d.httpEngine.Fetch(ctx, req)
	}
	if !d.smart {
		return d.chromeEngine.Fetch(ctx, req)
	}

	domain := extractDomain(req.URL)

	if remembered := d.memory.Get(domain); remembered != "" {
		eng := d.httpEngine
		if remembered == d.chromeEngine.Name() {
			eng = d.chromeEngine
		}
		slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
		result, err := eng.Fetch(ctx, req)
		if err == nil {
			return result, nil
		}
		// Memory entry failed; forget it and run the normal escalation.
		slog.Info("domain memory miss (engine failed), escalating",
			"domain", domain, "engine", remembered, "error", err)
		d.memory.Delete(domain)
	}

	result, err := d.httpEngine.Fetch(ctx, req)
	if err == nil && !NeedsBrowser(result.Body) {
		d.memory.Set(domain, d.httpEngine.Name())
		return result, nil
	}
	if err != nil {
		slog.Debug("http engine failed, escalating to browser",
			"url", req.URL, "error", err)
	} else {
		slog.Debug("body looks like a JS shell, escalating to browser",
			"url", req.URL)
	}

	result, err = d.chromeEngine.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	d.memory.Set(domain, d.chromeEngine.Name())
	return result, nil
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
