package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Crawl     CrawlConfig
	Browser   BrowserConfig
	Engine    EngineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// CrawlConfig carries the per-crawl knobs. A Website copies and then mutates
// its own instance through builder methods; the copy is immutable once the
// crawl starts.
type CrawlConfig struct {
	// RespectRobotsTxt consults the robots cache before every fetch.
	RespectRobotsTxt bool // default: false

	// Subdomains allows hosts under the seed's registered domain.
	Subdomains bool // default: false

	// TLD allows sibling hosts sharing the seed's name under another TLD.
	TLD bool // default: false

	// Delay is the minimum gap between requests to the same host.
	Delay time.Duration // default: 0

	// Limit caps the number of pages enqueued. 0 = unbounded.
	Limit int // default: 0

	// Depth caps the link distance from the seed. 0 = unbounded.
	Depth int // default: 0

	// Concurrency bounds the fetch worker pool.
	Concurrency int // default: 16

	// UserAgent is sent on every request and matched against robots groups.
	UserAgent string

	// BlacklistURL and WhitelistURL are URL substring patterns.
	BlacklistURL []string
	WhitelistURL []string

	// Proxies for HTTP fetches; only the first entry is used.
	Proxies []string

	// ChromeConnection is a CDP endpoint; when set, fetches drive a browser.
	ChromeConnection string

	// RequestTimeout is the deadline for a single fetch attempt.
	RequestTimeout time.Duration // default: 15s

	// ReturnPageLinks attaches the extracted link set to published pages.
	ReturnPageLinks bool

	// Stealth enables stealth JS injection on browser fetches.
	Stealth bool

	// RequestInterception enables the CDP interception policy.
	RequestInterception bool

	// Interception knobs, applied only when a browser is driving the fetch.
	BlockStylesheets bool
	BlockJavascript  bool
	BlockAnalytics   bool // default: true
	IgnoreVisuals    bool
	OnlyHTML         bool
}

// EngineConfig controls fetch engine selection.
type EngineConfig struct {
	// Smart escalates from the HTTP engine to the browser when the fetched
	// body looks like a JavaScript shell.
	Smart bool // default: false

	// DomainMemoryTTL is how long a winning engine is remembered per domain.
	DomainMemoryTTL time.Duration // default: 24h

	// HTTPTimeout is loaded from SPIDER_HTTP_TIMEOUT. No component reads it;
	// HTTP fetch deadlines come from each request's own timeout.
	HTTPTimeout time.Duration // default: 15s
}

// BrowserConfig controls the managed browser instance.
type BrowserConfig struct {
	// Headless controls whether a launched browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// IgnoreHTTPSErrors skips certificate validation in the browser.
	IgnoreHTTPSErrors bool // default: true
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key API rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SPIDER_HOST", "0.0.0.0"),
			Port: envIntOr("SPIDER_PORT", 8080),
			Mode: envOr("SPIDER_MODE", "release"),
		},
		Crawl: CrawlConfig{
			RespectRobotsTxt: envBoolOr("SPIDER_RESPECT_ROBOTS", false),
			Subdomains:       envBoolOr("SPIDER_SUBDOMAINS", false),
			TLD:              envBoolOr("SPIDER_TLD", false),
			Delay:            envDurationOr("SPIDER_DELAY", 0),
			Limit:            envIntOr("SPIDER_LIMIT", 0),
			Depth:            envIntOr("SPIDER_DEPTH", 0),
			Concurrency:      envIntOr("SPIDER_CONCURRENCY", 16),
			UserAgent:        envOr("SPIDER_USER_AGENT", ""),
			Proxies:          envSliceOr("SPIDER_PROXIES", nil),
			ChromeConnection: os.Getenv("SPIDER_CHROME_CONNECTION"),
			RequestTimeout:   envDurationOr("SPIDER_REQUEST_TIMEOUT", 15*time.Second),
			BlockAnalytics:   envBoolOr("SPIDER_BLOCK_ANALYTICS", true),
		},
		Engine: EngineConfig{
			Smart:           envBoolOr("SPIDER_SMART", false),
			DomainMemoryTTL: envDurationOr("SPIDER_DOMAIN_MEMORY_TTL", 24*time.Hour),
			HTTPTimeout:     envDurationOr("SPIDER_HTTP_TIMEOUT", 15*time.Second),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("SPIDER_HEADLESS", true),
			MaxPages:          envIntOr("SPIDER_MAX_PAGES", 10),
			NoSandbox:         envBoolOr("SPIDER_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("SPIDER_BROWSER_BIN"),
			IgnoreHTTPSErrors: envBoolOr("SPIDER_IGNORE_HTTPS_ERRORS", true),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SPIDER_AUTH_ENABLED", false),
			APIKeys: envSliceOr("SPIDER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SPIDER_RATE_RPS", 5.0),
			Burst:             envIntOr("SPIDER_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SPIDER_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("SPIDER_LOG_LEVEL", "info"),
			Format: envOr("SPIDER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
