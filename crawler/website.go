// Package crawler is the public crawl API: a Website is configured with
// builder methods, crawled (or scraped, retaining bodies), and observed
// through page subscriptions and link getters.
package crawler

import (
	"sync"
	"time"

	"github.com/abdulrahman305/spider/chrome"
	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/frontier"
	"github.com/abdulrahman305/spider/hub"
	"github.com/abdulrahman305/spider/models"
)

// Website crawls everything reachable from one seed URL under its scope
// rules. Configure before calling Crawl or Scrape; the configuration is
// immutable once the crawl starts.
type Website struct {
	seed       string
	cfg        config.CrawlConfig
	browserCfg config.BrowserConfig

	credentials *chrome.Credentials
	smart       bool

	hub *hub.Hub

	mu       sync.Mutex
	frontier *frontier.Frontier
	links    map[string]struct{}
	pages    []*models.Page
	result   *models.CrawlResult
}

// New creates a Website for the given seed URL with default configuration.
func New(seed string) *Website {
	loaded := config.Load()
	return NewWithConfig(seed, loaded.Crawl, loaded.Browser)
}

// NewWithConfig creates a Website with explicit configuration.
func NewWithConfig(seed string, cfg config.CrawlConfig, browserCfg config.BrowserConfig) *Website {
	return &Website{
		seed:       seed,
		cfg:        cfg,
		browserCfg: browserCfg,
		hub:        hub.New(),
		links:      make(map[string]struct{}),
	}
}

// WithLimit caps the number of pages enqueued. 0 = unbounded.
func (w *Website) WithLimit(limit int) *Website {
	w.cfg.Limit = limit
	return w
}

// WithDepth caps the link distance from the seed. 0 = unbounded.
func (w *Website) WithDepth(depth int) *Website {
	w.cfg.Depth = depth
	return w
}

// WithDelay sets the minimum gap between requests to the same host.
func (w *Website) WithDelay(delay time.Duration) *Website {
	w.cfg.Delay = delay
	return w
}

// WithConcurrency bounds the fetch worker pool.
func (w *Website) WithConcurrency(n int) *Website {
	w.cfg.Concurrency = n
	return w
}

// WithUserAgent sets the user agent for every request.
func (w *Website) WithUserAgent(agent string) *Website {
	w.cfg.UserAgent = agent
	return w
}

// WithBlacklist drops URLs containing any of the given patterns.
func (w *Website) WithBlacklist(patterns []string) *Website {
	w.cfg.BlacklistURL = patterns
	return w
}

// WithWhitelist restricts the crawl to URLs containing one of the patterns.
func (w *Website) WithWhitelist(patterns []string) *Website {
	w.cfg.WhitelistURL = patterns
	return w
}

// WithSubdomains allows hosts under the seed's registered domain.
func (w *Website) WithSubdomains(enabled bool) *Website {
	w.cfg.Subdomains = enabled
	return w
}

// WithTLD allows sibling hosts under other top-level domains.
func (w *Website) WithTLD(enabled bool) *Website {
	w.cfg.TLD = enabled
	return w
}

// WithRespectRobotsTxt consults robots.txt before every fetch.
func (w *Website) WithRespectRobotsTxt(enabled bool) *Website {
	w.cfg.RespectRobotsTxt = enabled
	return w
}

// WithChromeConnection routes fetches through the browser at the given CDP
// endpoint.
func (w *Website) WithChromeConnection(endpoint string) *Website {
	w.cfg.ChromeConnection = endpoint
	return w
}

// WithProxies sets the proxy list for HTTP fetches.
func (w *Website) WithProxies(proxies []string) *Website {
	w.cfg.Proxies = proxies
	return w
}

// WithStealth enables stealth JS injection on browser fetches.
func (w *Website) WithStealth(enabled bool) *Website {
	w.cfg.Stealth = enabled
	return w
}

// WithReturnPageLinks attaches the extracted link set to published pages.
func (w *Website) WithReturnPageLinks(enabled bool) *Website {
	w.cfg.ReturnPageLinks = enabled
	return w
}

// WithRequestInterception enables the CDP interception policy on browser
// fetches.
func (w *Website) WithRequestInterception(enabled bool) *Website {
	w.cfg.RequestInterception = enabled
	return w
}

// WithRequestTimeout bounds each fetch attempt.
func (w *Website) WithRequestTimeout(timeout time.Duration) *Website {
	w.cfg.RequestTimeout = timeout
	return w
}

// WithCredentials installs credentials for browser auth challenges.
func (w *Website) WithCredentials(username, password string) *Website {
	w.credentials = &chrome.Credentials{Username: username, Password: password}
	return w
}

// WithSmart escalates from plain HTTP to the browser only when a page needs
// JavaScript.
func (w *Website) WithSmart(enabled bool) *Website {
	w.smart = enabled
	return w
}

// Subscribe registers a page receiver with the given buffer capacity.
// Subscribe before calling Crawl to observe every page.
func (w *Website) Subscribe(capacity int) *hub.Receiver {
	return w.hub.Subscribe(capacity)
}

// GetURL returns the seed URL.
func (w *Website) GetURL() string {
	return w.seed
}

// GetAllLinksVisited returns a copy of every URL admitted to the frontier.
func (w *Website) GetAllLinksVisited() map[string]struct{} {
	w.mu.Lock()
	f := w.frontier
	w.mu.Unlock()
	if f == nil {
		return map[string]struct{}{}
	}
	return f.SnapshotVisited()
}

// GetLinks returns a copy of every link extracted from crawled pages.
func (w *Website) GetLinks() map[string]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	links := make(map[string]struct{}, len(w.links))
	for k := range w.links {
		links[k] = struct{}{}
	}
	return links
}

// GetPages returns the retained pages. Nil unless Scrape ran.
func (w *Website) GetPages() []*models.Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pages
}

// Result returns the terminal crawl result, nil while the crawl runs.
func (w *Website) Result() *models.CrawlResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}
