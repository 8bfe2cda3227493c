package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/abdulrahman305/spider/models"
	tls "github.com/refraction-networking/utls"
	xproxy "golang.org/x/net/proxy"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps response reads to prevent unbounded memory use.
const maxBody = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// chromeH1Spec stays empty; no fallback ClientHello is configured.
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPEngine fetches over plain HTTP with a Chrome TLS fingerprint. It is the
// fastest option, suitable for pages that don't need JavaScript rendering.
type HTTPEngine struct {
	client *http.Client
}

// NewHTTPEngine creates an HTTPEngine. Only the first entry of proxies is
// used: an http(s) URL becomes the transport proxy, and a socks5/socks5h URL
// carries the TLS connections dialed for https targets. Later entries are
// ignored.
func NewHTTPEngine(proxies []string) *HTTPEngine {
	var proxy string
	if len(proxies) > 0 {
		proxy = proxies[0]
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		// A URL that cannot form a request will never succeed; not retryable.
		return nil, models.NewCrawlError(models.ErrCodeParseURL, "http_engine: build request", err)
	}

	ua := req.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, categorizeTransportError("http_engine: do request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, categorizeTransportError("http_engine: read body", err)
	}

	return &Result{
		Body:             body,
		StatusCode:       resp.StatusCode,
		Headers:          resp.Header,
		ContentType:      resp.Header.Get("Content-Type"),
		FinalURL:         resp.Request.URL.String(),
		BytesTransferred: int64(len(body)),
		RedirectChain:    redirectChain(resp),
		EngineName:       e.Name(),
	}, nil
}

// categorizeTransportError wraps a wire-level failure as the typed error the
// crawler's retry policy inspects: timeouts and transport faults retry,
// cancellation does not.
func categorizeTransportError(msg string, err error) *models.CrawlError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCrawlError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeCancelled, msg, err)
	default:
		return models.NewCrawlError(models.ErrCodeTransport, msg, err)
	}
}

// redirectChain reconstructs the hops that led to resp, oldest first. The
// client populates Request.Response on every redirect-created request.
func redirectChain(resp *http.Response) []models.Redirect {
	var chain []models.Redirect
	for r := resp.Request; r != nil && r.Response != nil; r = r.Response.Request {
		prior := r.Response
		chain = append(chain, models.Redirect{
			URL:        prior.Request.URL.String(),
			StatusCode: prior.StatusCode,
		})
	}
	// Walked newest to oldest; reverse into document order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	if proxy != "" {
		if proxyURL, parseErr := url.Parse(proxy); parseErr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			socksDialer, socksErr := xproxy.FromURL(proxyURL, dialer)
			if socksErr != nil {
				return nil, fmt.Errorf("socks5 dial: %w", socksErr)
			}
			var socksConn net.Conn
			if cd, ok := socksDialer.(xproxy.ContextDialer); ok {
				socksConn, socksErr = cd.DialContext(ctx, network, addr)
			} else {
				socksConn, socksErr = socksDialer.Dial(network, addr)
			}
			if socksErr != nil {
				return nil, fmt.Errorf("socks5 dial: %w", socksErr)
			}
			rawConn = socksConn
		}
	}

	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(rawConn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
