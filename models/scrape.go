package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the page to fetch. Required.
	URL string `json:"url" binding:"required,url"`

	// OutputFormat selects the transformation: "markdown" (default),
	// "readability", "text", or "html".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=markdown readability text html"`

	// Browser is accepted in the payload but not read by the scrape handler;
	// it does not force the chrome engine.
	Browser bool `json:"browser,omitempty"`

	// Stealth enables stealth JS injection on browser fetches.
	Stealth bool `json:"stealth,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Timeout in seconds; capped by the server's max timeout.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// MaxAgeMs allows serving a cached result no older than this.
	MaxAgeMs int `json:"max_age_ms,omitempty"`
}

// Defaults fills zero fields with server defaults.
func (r *ScrapeRequest) Defaults() {
	if r.OutputFormat == "" {
		r.OutputFormat = "markdown"
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	Success bool `json:"success"`

	// URL is the final URL after redirects.
	URL string `json:"url"`

	// StatusCode is the HTTP status of the final response.
	StatusCode int `json:"status_code"`

	// Content is the transformed output in the requested format.
	Content string `json:"content"`

	// Engine records which fetch engine produced the result.
	Engine string `json:"engine,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // always "healthy"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
