// Package robots fetches, parses, and caches per-host robots.txt rules.
package robots

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	// defaultTTL is how long a parsed robots.txt stays fresh.
	defaultTTL = 1 * time.Hour

	// negativeTTL is how long an "allow all" verdict from a failed fetch
	// is kept before retrying the host.
	negativeTTL = 10 * time.Minute

	// maxRobotsBody caps the robots.txt read size.
	maxRobotsBody = 512 << 10
)

// Doer issues the robots.txt request. The crawler passes a plain HTTP client
// with its request timeout; robots fetches do not go through the configured
// proxies or through the robots check itself.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// entry is one host's parsed rules.
type entry struct {
	data      *robotstxt.RobotsData // nil means allow-all
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *entry) expired() bool {
	return time.Since(e.fetchedAt) > e.ttl
}

// Cache resolves robots.txt verdicts per host. It is safe for concurrent use;
// a host's entry is fetched once and shared until its TTL lapses.
type Cache struct {
	mu        sync.RWMutex
	hosts     map[string]*entry
	client    Doer
	userAgent string
}

// NewCache creates a robots cache that fetches through client and identifies
// as userAgent.
func NewCache(client Doer, userAgent string) *Cache {
	return &Cache{
		hosts:     make(map[string]*entry),
		client:    client,
		userAgent: userAgent,
	}
}

// Allowed reports whether the user agent may fetch u. Unreachable or
// unparseable robots.txt allows everything for a shortened TTL.
func (c *Cache) Allowed(ctx context.Context, u *url.URL) bool {
	e := c.hostEntry(ctx, u)
	if e.data == nil {
		return true
	}
	group := e.data.FindGroup(c.userAgent)
	if group == nil {
		return true
	}
	return group.Test(u.RequestURI())
}

// CrawlDelay returns the crawl-delay hint for host, zero when the
// host has none. Only hosts already consulted through Allowed are known;
// CrawlDelay never triggers a fetch.
func (c *Cache) CrawlDelay(host string) time.Duration {
	c.mu.RLock()
	e, ok := c.hosts[host]
	c.mu.RUnlock()
	if !ok || e.data == nil {
		return 0
	}
	group := e.data.FindGroup(c.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// hostEntry returns the cached entry for u's host, fetching when absent or
// expired.
func (c *Cache) hostEntry(ctx context.Context, u *url.URL) *entry {
	host := u.Host

	c.mu.RLock()
	e, ok := c.hosts[host]
	c.mu.RUnlock()
	if ok && !e.expired() {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have refetched while we waited.
	if e, ok = c.hosts[host]; ok && !e.expired() {
		return e
	}

	e = c.fetch(ctx, u)
	c.hosts[host] = e
	return e
}

// fetch retrieves and parses /robots.txt for u's host.
func (c *Cache) fetch(ctx context.Context, u *url.URL) *entry {
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return &entry{fetchedAt: time.Now(), ttl: negativeTTL}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("robots: fetch failed, allowing all", "host", u.Host, "error", err)
		return &entry{fetchedAt: time.Now(), ttl: negativeTTL}
	}
	defer resp.Body.Close()

	// A host that cannot serve its robots.txt is treated like one that has
	// none, for a shortened TTL.
	if resp.StatusCode >= 500 {
		slog.Debug("robots: server error, allowing all", "host", u.Host, "status", resp.StatusCode)
		return &entry{fetchedAt: time.Now(), ttl: negativeTTL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		slog.Debug("robots: read failed, allowing all", "host", u.Host, "error", err)
		return &entry{fetchedAt: time.Now(), ttl: negativeTTL}
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		slog.Warn("robots: parse failed, allowing all", "host", u.Host, "error", err)
		return &entry{fetchedAt: time.Now(), ttl: negativeTTL}
	}

	return &entry{data: data, fetchedAt: time.Now(), ttl: defaultTTL}
}
