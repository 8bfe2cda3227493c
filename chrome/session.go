package chrome

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/abdulrahman305/spider/engine"
	"github.com/abdulrahman305/spider/models"
)

// session binds one navigation to a page and its network manager. The event
// loop goroutine is the manager's single owner: every manager call and every
// queued command dispatch happens there, preserving command order.
type session struct {
	page *rod.Page
	mgr  *NetworkManager

	mu           sync.Mutex
	mainResponse *proto.NetworkResponse
	mainChain    []*HTTPRequest
	bytes        int64
}

func newSession(page *rod.Page, mgr *NetworkManager) *session {
	return &session{page: page, mgr: mgr}
}

// start subscribes to the page's network events and processes them until the
// page context ends. It must be called before navigation so no event is
// missed.
func (s *session) start() {
	wait := s.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			s.mgr.OnRequestWillBeSent(e)
			s.pump()
		},
		func(e *proto.FetchRequestPaused) {
			s.mgr.OnRequestPaused(e)
			s.pump()
		},
		func(e *proto.FetchAuthRequired) {
			s.mgr.OnAuthRequired(e)
			s.pump()
		},
		func(e *proto.NetworkResponseReceived) {
			s.mgr.OnResponseReceived(e)
			s.pump()
		},
		func(e *proto.NetworkLoadingFinished) {
			s.addBytes(int64(e.EncodedDataLength))
			s.mgr.OnLoadingFinished(e)
			s.pump()
		},
		func(e *proto.NetworkLoadingFailed) {
			s.mgr.OnLoadingFailed(e)
			s.pump()
		},
		func(e *proto.NetworkRequestServedFromCache) {
			s.mgr.OnRequestServedFromCache(e)
			s.pump()
		},
	)
	go wait()
}

// pump drains the manager's queue: commands go to the wire one at a time,
// finished document requests become the navigation's response.
func (s *session) pump() {
	for {
		ev := s.mgr.Poll()
		if ev == nil {
			return
		}
		switch e := ev.(type) {
		case *SendCommand:
			s.send(e.Command)
		case *RequestFinished:
			s.recordMainResponse(e.Request)
		case *RequestFailed:
			slog.Debug("subresource failed",
				"url", e.Request.URL, "error", e.Request.FailureText)
		case *RequestStarted:
			// Tracked; nothing to dispatch.
		}
	}
}

func (s *session) send(cmd proto.Request) {
	_, err := s.page.Call(s.page.GetContext(), string(s.page.SessionID), cmd.ProtoReq(), cmd)
	if err != nil {
		slog.Debug("cdp command failed", "method", cmd.ProtoReq(), "error", err)
	}
}

func (s *session) addBytes(n int64) {
	s.mu.Lock()
	s.bytes += n
	s.mu.Unlock()
}

func (s *session) recordMainResponse(request *HTTPRequest) {
	if request.ResourceType != proto.NetworkResourceTypeDocument || request.Response == nil {
		return
	}
	s.mu.Lock()
	if s.mainResponse == nil {
		s.mainResponse = request.Response
		s.mainChain = request.RedirectChain
	}
	s.mu.Unlock()
}

func (s *session) snapshot() (*proto.NetworkResponse, []*HTTPRequest, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mainResponse, s.mainChain, s.bytes
}

// Fetch navigates a pooled tab to req.URL and returns the rendered result.
// It satisfies engine.ChromeFetchFunc.
//
// Order matters: stealth and interception must be installed before Navigate,
// and the event loop must be running before Navigate so the document request
// is captured.
func (b *Browser) Fetch(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	handle, err := b.pool.Get()
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport,
			"failed to acquire tab from pool", err)
	}
	page := handle.Page

	success := false
	// Cleanup uses the original page reference (without the request context)
	// so it works even after the deadline expired.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		b.pool.Put(handle, success)
	}()

	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	p := page.Context(ctx)

	mgr := NewNetworkManager(b.cfg.IgnoreHTTPSErrors, b.timeout, b.flags)
	sess := newSession(p, mgr)

	for _, cmd := range mgr.InitCommands() {
		sess.send(cmd)
	}
	if req.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}.Call(p)
	}

	mgr.SetRequestInterception(b.intercept)
	if b.credentials != nil {
		mgr.Authenticate(*b.credentials)
	}
	mgr.SetExtraHeaders(withDefaultReferer(req.Headers, req.URL))
	sess.pump()

	sess.start()

	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, categorizeNavError(navErr)
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeNavError(htmlErr)
	}

	finalURL := req.URL
	if info, infoErr := p.Info(); infoErr == nil && info.URL != "" {
		finalURL = info.URL
	}

	response, chain, bytes := sess.snapshot()

	result := &engine.Result{
		Body:             []byte(rawHTML),
		FinalURL:         finalURL,
		BytesTransferred: bytes,
		ContentType:      "text/html",
	}
	if response != nil {
		result.StatusCode = response.Status
		result.Headers = protoHeaders(response.Headers)
		if ct := result.Headers.Get("Content-Type"); ct != "" {
			result.ContentType = ct
		}
	}
	for _, hop := range chain {
		redirect := models.Redirect{URL: hop.URL}
		if hop.Response != nil {
			redirect.StatusCode = hop.Response.Status
		}
		result.RedirectChain = append(result.RedirectChain, redirect)
	}

	success = true
	return result, nil
}

// withDefaultReferer adds a Google search referer when the caller set none.
func withDefaultReferer(headers map[string]string, target string) map[string]string {
	merged := make(map[string]string, len(headers)+1)
	if _, hasReferer := headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(target); parseErr == nil {
			merged["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range headers {
		merged[k] = v
	}
	return merged
}

// protoHeaders converts CDP response headers to http.Header.
func protoHeaders(headers proto.NetworkHeaders) http.Header {
	result := make(http.Header, len(headers))
	for k, v := range headers {
		result.Set(k, v.Str())
	}
	return result
}

// categorizeNavError wraps raw navigation errors into typed crawl errors.
func categorizeNavError(err error) *models.CrawlError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCrawlError(models.ErrCodeTimeout, "navigation timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeCancelled, "navigation cancelled", err)
	default:
		return models.NewCrawlError(models.ErrCodeTransport, "navigation failed", err)
	}
}
