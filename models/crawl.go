package models

// CrawlStatus is the terminal state of a crawl.
type CrawlStatus int

const (
	// CrawlCompleted means the frontier drained and every worker went idle.
	CrawlCompleted CrawlStatus = iota

	// CrawlCancelled means the crawl was stopped before the frontier drained.
	CrawlCancelled

	// CrawlFailed means the crawl aborted on an unrecoverable error.
	CrawlFailed
)

func (s CrawlStatus) String() string {
	switch s {
	case CrawlCompleted:
		return "completed"
	case CrawlCancelled:
		return "cancelled"
	case CrawlFailed:
		return "failed"
	}
	return "unknown"
}

// CrawlResult is returned when a crawl terminates.
type CrawlResult struct {
	Status CrawlStatus

	// Pages is the number of pages emitted.
	Pages int

	// Err is set when Status is CrawlFailed.
	Err error
}

// CrawlRequest is the payload for POST /api/v1/crawl.
type CrawlRequest struct {
	// URL is the seed page. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxDepth limits link depth from the seed. 0 selects the default of 3.
	MaxDepth int `json:"max_depth,omitempty" binding:"omitempty,min=0,max=25"`

	// MaxPages limits the total number of pages. 0 selects the default of 100.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=0,max=10000"`

	// Subdomains allows hosts under the seed's domain.
	Subdomains bool `json:"subdomains,omitempty"`

	// RespectRobots consults robots.txt before every fetch.
	RespectRobots bool `json:"respect_robots,omitempty"`

	// DelayMs is the minimum per-host gap between requests.
	DelayMs int `json:"delay_ms,omitempty"`

	// Blacklist and Whitelist are URL substring patterns.
	Blacklist []string `json:"blacklist,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`

	// OutputFormat selects the transformation for each page:
	// "markdown" (default), "readability", "text", or "html".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=markdown readability text html"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// CrawlResponse is the immediate response for POST /api/v1/crawl.
type CrawlResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PageResult is one crawled page in API responses.
type PageResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Content    string `json:"content,omitempty"`
	Failure    string `json:"failure,omitempty"`
	Links      int    `json:"links"`
}

// CrawlStatusResponse is the response for GET /api/v1/crawl/:id.
type CrawlStatusResponse struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Results   []*PageResult `json:"results,omitempty"`
}

// CrawlJob tracks an in-progress crawl operation behind the API.
type CrawlJob struct {
	ID            string
	Status        string // "processing", "completed", "cancelled", "failed"
	Completed     int
	Results       []*PageResult
	CreatedAt     int64 // unix timestamp
	WebhookURL    string
	WebhookSecret string
}
