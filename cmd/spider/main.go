package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdulrahman305/spider/api"
	"github.com/abdulrahman305/spider/cache"
	"github.com/abdulrahman305/spider/chrome"
	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/crawler"
	"github.com/abdulrahman305/spider/engine"
	"github.com/abdulrahman305/spider/transform"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	crawlURL := flag.String("url", "", "crawl this URL and print visited links instead of serving")
	limit := flag.Int("limit", 0, "max pages to crawl (crawl mode)")
	flag.Parse()

	if *crawlURL != "" {
		runCrawl(cfg, *crawlURL, *limit)
		return
	}

	serve(cfg)
}

// runCrawl crawls one site from the command line and prints every visited
// link, the way a library consumer would embed the crawler.
func runCrawl(cfg *config.Config, seed string, limit int) {
	site := crawler.NewWithConfig(seed, cfg.Crawl, cfg.Browser)
	if limit > 0 {
		site.WithLimit(limit)
	}

	rx := site.Subscribe(64)
	go func() {
		for {
			page, err := rx.Recv(context.Background())
			if err != nil {
				return
			}
			fmt.Printf("- %s -- %d -- %d bytes\n", page.URL, page.StatusCode, len(page.Body))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result := site.Crawl(ctx)

	fmt.Printf("crawl %s: %s, %d pages in %s\n",
		seed, result.Status, result.Pages, time.Since(start).Round(time.Millisecond))
	if result.Err != nil {
		slog.Error("crawl failed", "error", result.Err)
		os.Exit(1)
	}
}

// serve runs the HTTP API.
func serve(cfg *config.Config) {
	slog.Info("spider starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	// ── Fetch engines ───────────────────────────────────────────────
	httpEngine := engine.NewHTTPEngine(cfg.Crawl.Proxies)

	var chromeEngine engine.Engine
	var browser *chrome.Browser
	if cfg.Crawl.ChromeConnection != "" || cfg.Engine.Smart {
		var err error
		browser, err = chrome.New(cfg.Browser, chrome.Options{
			ChromeConnection:    cfg.Crawl.ChromeConnection,
			RequestInterception: cfg.Crawl.RequestInterception,
			Flags: chrome.InterceptFlags{
				IgnoreVisuals:    cfg.Crawl.IgnoreVisuals,
				BlockStylesheets: cfg.Crawl.BlockStylesheets,
				BlockJavascript:  cfg.Crawl.BlockJavascript,
				BlockAnalytics:   cfg.Crawl.BlockAnalytics,
				OnlyHTML:         cfg.Crawl.OnlyHTML,
			},
			RequestTimeout: cfg.Crawl.RequestTimeout,
		})
		if err != nil {
			slog.Error("failed to initialise browser", "error", err)
			os.Exit(1)
		}
		defer browser.Close()
		chromeEngine = engine.NewChromeEngine(browser.Fetch, cfg.Crawl.Stealth)
	}

	var memory *engine.DomainMemory
	if cfg.Engine.Smart && chromeEngine != nil {
		memory = engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		defer memory.Stop()
		slog.Info("smart engine escalation enabled", "memoryTTL", cfg.Engine.DomainMemoryTTL)
	}
	dispatcher := engine.NewDispatcher(httpEngine, chromeEngine, memory, cfg.Engine.Smart)

	// ── API ─────────────────────────────────────────────────────────
	tr := transform.New()
	cc := cache.New(cfg.Cache.MaxEntries)
	router := api.NewRouter(dispatcher, tr, cfg, cc, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("spider stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
