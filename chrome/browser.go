package chrome

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/models"
)

// Browser owns the browser process (or remote connection) and the tab pool.
// It is safe for concurrent use.
type Browser struct {
	browser     *rod.Browser
	pool        *PagePool
	cfg         config.BrowserConfig
	flags       InterceptFlags
	intercept   bool
	credentials *Credentials
	timeout     time.Duration
	launched    bool // true when we own the process and must kill it on Close
}

// Options carries everything a crawl needs from the browser layer.
type Options struct {
	// ChromeConnection connects to an existing browser instead of
	// launching one.
	ChromeConnection string

	// RequestInterception enables the network manager's skip ladder.
	RequestInterception bool

	// Flags are the interception knobs.
	Flags InterceptFlags

	// Credentials answer auth challenges when set.
	Credentials *Credentials

	// RequestTimeout bounds each navigation.
	RequestTimeout time.Duration
}

// New launches a browser (or connects to opts.ChromeConnection) and
// initialises the tab pool.
func New(cfg config.BrowserConfig, opts Options) (*Browser, error) {
	var browser *rod.Browser
	launched := false

	if opts.ChromeConnection != "" {
		browser = rod.New().ControlURL(opts.ChromeConnection)
		if err := browser.Connect(); err != nil {
			return nil, models.NewCrawlError(models.ErrCodeTransport,
				"failed to connect to chrome endpoint", err)
		}
	} else {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}

		// Flags that keep a crawling browser quiet and undetected.
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-ipc-flooding-protection"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-prompt-on-repost"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			return nil, models.NewCrawlError(models.ErrCodeTransport,
				"failed to launch browser", err)
		}
		slog.Info("browser launched", "controlURL", controlURL)

		browser = rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			return nil, models.NewCrawlError(models.ErrCodeTransport,
				"failed to connect to browser", err)
		}
		launched = true
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	b := &Browser{
		browser:     browser,
		cfg:         cfg,
		flags:       opts.Flags,
		intercept:   opts.RequestInterception,
		credentials: opts.Credentials,
		timeout:     timeout,
		launched:    launched,
	}

	b.pool = newPagePool(
		PoolConfig{MinPages: 1, HardMax: cfg.MaxPages},
		func() (*rod.Page, error) {
			return browser.Page(proto.TargetCreateTarget{})
		},
		func(page *rod.Page) {
			if err := page.Close(); err != nil {
				slog.Debug("page_pool: close failed", "error", err)
			}
		},
	)

	slog.Info("tab pool created", "maxPages", cfg.MaxPages)
	return b, nil
}

// Stats reports the state of the tab pool.
func (b *Browser) Stats() (size, active int) {
	return b.pool.Size(), b.pool.ActiveCount()
}

// Close drains the tab pool and, when this process launched the browser,
// kills it. A connected remote browser is only disconnected.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining tab pool")
	b.pool.Stop()
	if b.launched {
		b.browser.MustClose()
	} else {
		_ = b.browser.Close()
	}
	slog.Info("browser shutdown complete")
}
