package crawler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdulrahman305/spider/chrome"
	"github.com/abdulrahman305/spider/engine"
	"github.com/abdulrahman305/spider/frontier"
	"github.com/abdulrahman305/spider/limiter"
	"github.com/abdulrahman305/spider/models"
	"github.com/abdulrahman305/spider/robots"
)

const (
	// maxRetries is the number of additional attempts after a transient
	// fetch failure.
	maxRetries = 3

	// retryBase is the first backoff step; each retry doubles it.
	retryBase = 250 * time.Millisecond
)

// Crawl discovers and fetches every page reachable from the seed until the
// frontier drains and all workers go idle, publishing each page to
// subscribers. The Website itself does not retain page bodies.
func (w *Website) Crawl(ctx context.Context) models.CrawlResult {
	return w.run(ctx, false)
}

// Scrape crawls while retaining page bodies in memory; see GetPages.
func (w *Website) Scrape(ctx context.Context) models.CrawlResult {
	return w.run(ctx, true)
}

// crawlState bundles the collaborators a crawl run shares across workers.
type crawlState struct {
	frontier   *frontier.Frontier
	dispatcher *engine.Dispatcher
	robots     *robots.Cache
	limiter    *limiter.Limiter
	retain     bool
	pages      atomic.Int32
}

func (w *Website) run(ctx context.Context, retain bool) models.CrawlResult {
	seedURL, err := frontier.Canonicalize(w.seed)
	if err != nil {
		result := models.CrawlResult{
			Status: models.CrawlFailed,
			Err:    models.NewCrawlError(models.ErrCodeParseURL, "invalid seed URL", err),
		}
		w.finish(result)
		return result
	}

	scope := frontier.NewScope(seedURL, w.cfg.Subdomains, w.cfg.TLD,
		w.cfg.BlacklistURL, w.cfg.WhitelistURL)
	f := frontier.New(scope, w.cfg.Limit, w.cfg.Depth)

	w.mu.Lock()
	w.frontier = f
	w.mu.Unlock()

	httpEngine := engine.NewHTTPEngine(w.cfg.Proxies)

	var chromeEngine engine.Engine
	if w.cfg.ChromeConnection != "" {
		browser, browserErr := chrome.New(w.browserCfg, chrome.Options{
			ChromeConnection:    w.cfg.ChromeConnection,
			RequestInterception: w.cfg.RequestInterception,
			Flags: chrome.InterceptFlags{
				IgnoreVisuals:    w.cfg.IgnoreVisuals,
				BlockStylesheets: w.cfg.BlockStylesheets,
				BlockJavascript:  w.cfg.BlockJavascript,
				BlockAnalytics:   w.cfg.BlockAnalytics,
				OnlyHTML:         w.cfg.OnlyHTML,
			},
			Credentials:    w.credentials,
			RequestTimeout: w.cfg.RequestTimeout,
		})
		if browserErr != nil {
			result := models.CrawlResult{Status: models.CrawlFailed, Err: browserErr}
			w.finish(result)
			return result
		}
		defer browser.Close()
		chromeEngine = engine.NewChromeEngine(browser.Fetch, w.cfg.Stealth)
	}

	var memory *engine.DomainMemory
	if w.smart && chromeEngine != nil {
		memory = engine.NewDomainMemory(24 * time.Hour)
		defer memory.Stop()
	}

	robotsClient := &http.Client{Timeout: w.cfg.RequestTimeout}
	robotsCache := robots.NewCache(robotsClient, w.cfg.UserAgent)

	state := &crawlState{
		frontier:   f,
		dispatcher: engine.NewDispatcher(httpEngine, chromeEngine, memory, w.smart),
		robots:     robotsCache,
		limiter:    limiter.New(w.cfg.Delay, robotsCache.CrawlDelay),
		retain:     retain,
	}

	f.Add(seedURL.String(), 0)

	result := w.schedule(ctx, state)
	w.finish(result)
	return result
}

// schedule drains the frontier through the worker pool until quiescence:
// nothing pending and no worker in flight. Workers enqueue newly discovered
// links before going idle, so an empty frontier with zero active workers is
// a stable terminal state.
func (w *Website) schedule(ctx context.Context, state *crawlState) models.CrawlResult {
	concurrency := w.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 16
	}

	sem := make(chan struct{}, concurrency)
	workerDone := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var active atomic.Int32

	cancelled := false

	for {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		entry, ok := state.frontier.Pop()
		if !ok {
			if active.Load() == 0 {
				break
			}
			select {
			case <-workerDone:
			case <-ctx.Done():
				cancelled = true
			}
			if cancelled {
				break
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}

		active.Add(1)
		wg.Add(1)
		go func(entry frontier.Entry) {
			defer func() {
				<-sem
				active.Add(-1)
				wg.Done()
				select {
				case workerDone <- struct{}{}:
				default:
				}
			}()
			w.processURL(ctx, state, entry)
		}(entry)
	}

	if cancelled {
		state.frontier.Drain()
	}
	wg.Wait()

	if cancelled {
		return models.CrawlResult{Status: models.CrawlCancelled, Pages: int(state.pages.Load())}
	}
	return models.CrawlResult{Status: models.CrawlCompleted, Pages: int(state.pages.Load())}
}

// processURL runs one URL through robots, rate limiting, fetch (with
// retries), link extraction, and publication.
func (w *Website) processURL(ctx context.Context, state *crawlState, entry frontier.Entry) {
	target, err := url.Parse(entry.URL)
	if err != nil {
		slog.Warn("dropping unparseable URL", "url", entry.URL, "error", err)
		return
	}

	if w.cfg.RespectRobotsTxt && !state.robots.Allowed(ctx, target) {
		slog.Debug("robots denied", "url", entry.URL)
		return
	}

	if err := state.limiter.Acquire(ctx, target.Host); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	result, fetchErr := w.fetchWithRetry(ctx, state, entry.URL)
	if ctx.Err() != nil {
		// No page is published after cancellation.
		return
	}

	page := w.buildPage(entry, result, fetchErr)

	if !page.Failed() && page.IsHTML() {
		w.extractAndEnqueue(state, page, entry.Depth)
	}

	if state.retain {
		w.mu.Lock()
		w.pages = append(w.pages, page)
		w.mu.Unlock()
	}

	state.pages.Add(1)
	w.hub.Publish(page)
}

// fetchWithRetry dispatches the fetch, retrying transient failures with
// exponential backoff (250ms doubled per attempt, jittered ±20%).
func (w *Website) fetchWithRetry(ctx context.Context, state *crawlState, target string) (*engine.Result, error) {
	req := &engine.Request{
		URL:       target,
		UserAgent: w.cfg.UserAgent,
		Timeout:   w.cfg.RequestTimeout,
		Stealth:   w.cfg.Stealth,
	}

	var result *engine.Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = state.dispatcher.Dispatch(ctx, req)
		if !retryable(result, err) || attempt >= maxRetries {
			return result, err
		}

		backoff := retryBase << attempt
		jitter := time.Duration(rand.Int63n(int64(backoff)*2/5+1)) - backoff/5
		slog.Debug("retrying fetch", "url", target, "attempt", attempt+1, "backoff", backoff+jitter)

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
}

// retryable reports whether a fetch outcome is transient: transport errors,
// timeouts, and 5xx statuses.
func retryable(result *engine.Result, err error) bool {
	if err != nil {
		var crawlErr *models.CrawlError
		if errors.As(err, &crawlErr) {
			return crawlErr.Retryable()
		}
		return !errors.Is(err, context.Canceled)
	}
	return result != nil && result.StatusCode >= 500
}

// buildPage assembles the published artifact for one fetch outcome.
func (w *Website) buildPage(entry frontier.Entry, result *engine.Result, err error) *models.Page {
	page := &models.Page{
		RequestURL: entry.URL,
		URL:        entry.URL,
		Depth:      entry.Depth,
	}
	if err != nil {
		page.FailureText = err.Error()
		return page
	}

	page.URL = result.FinalURL
	page.StatusCode = result.StatusCode
	page.Headers = result.Headers
	page.Body = result.Body
	page.ContentType = result.ContentType
	page.BytesTransferred = result.BytesTransferred
	page.RedirectChain = result.RedirectChain
	if page.ContentType == "" && len(result.Body) > 0 {
		page.ContentType = http.DetectContentType(result.Body)
	}
	return page
}

// extractAndEnqueue feeds a page's links back into the frontier at the next
// depth and records them on the website (and the page, when configured).
func (w *Website) extractAndEnqueue(state *crawlState, page *models.Page, depth int) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return
	}

	links := ExtractLinks(page.Body, base, false)
	if len(links) == 0 {
		return
	}

	for _, link := range links {
		state.frontier.Add(link, depth+1)
	}

	w.mu.Lock()
	for _, link := range links {
		w.links[link] = struct{}{}
	}
	w.mu.Unlock()

	if w.cfg.ReturnPageLinks {
		page.Links = links
	}
}

// finish records the terminal result and signals subscribers.
func (w *Website) finish(result models.CrawlResult) {
	w.mu.Lock()
	w.result = &result
	w.mu.Unlock()
	w.hub.Close(result)

	slog.Info("crawl finished",
		"seed", w.seed,
		"status", result.Status.String(),
		"pages", result.Pages,
	)
}

