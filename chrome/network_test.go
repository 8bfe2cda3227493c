package chrome

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func newTestManager(flags InterceptFlags) *NetworkManager {
	m := NewNetworkManager(true, 15*time.Second, flags)
	m.SetRequestInterception(true)
	// Drain the enable commands so tests start from an empty queue.
	for m.Poll() != nil {
	}
	return m
}

func pausedEvent(id, networkID, url string, rt proto.NetworkResourceType) *proto.FetchRequestPaused {
	return &proto.FetchRequestPaused{
		RequestID:    proto.FetchRequestID(id),
		NetworkID:    proto.NetworkRequestID(networkID),
		Request:      &proto.NetworkRequest{URL: url},
		ResourceType: rt,
	}
}

func willBeSentEvent(id, url string, rt proto.NetworkResourceType) *proto.NetworkRequestWillBeSent {
	return &proto.NetworkRequestWillBeSent{
		RequestID: proto.NetworkRequestID(id),
		Request:   &proto.NetworkRequest{URL: url},
		Type:      rt,
	}
}

// pollCommands drains the queue and returns only the queued CDP commands.
func pollCommands(m *NetworkManager) []proto.Request {
	var cmds []proto.Request
	for {
		ev := m.Poll()
		if ev == nil {
			return cmds
		}
		if send, ok := ev.(*SendCommand); ok {
			cmds = append(cmds, send.Command)
		}
	}
}

func TestInterceptionDisabledButProtocolEnabled(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})
	m.Authenticate(Credentials{Username: "u", Password: "p"})
	for m.Poll() != nil {
	}

	m.OnRequestPaused(pausedEvent("i1", "r1", "https://example.com/a.png", proto.NetworkResourceTypeImage))

	cmds := pollCommands(m)
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	if _, ok := cmds[0].(*proto.FetchContinueRequest); !ok {
		t.Fatalf("expected continueRequest, got %T", cmds[0])
	}
}

func TestSkipLadder(t *testing.T) {
	tests := []struct {
		name  string
		flags InterceptFlags
		url   string
		rt    proto.NetworkResourceType
		skip  bool
	}{
		{"prefetch always skipped", InterceptFlags{}, "https://example.com/next", proto.NetworkResourceTypePrefetch, true},
		{"ping always skipped", InterceptFlags{}, "https://example.com/beacon", proto.NetworkResourceTypePing, true},
		{"image with visuals ignored", InterceptFlags{IgnoreVisuals: true}, "https://example.com/a.png", proto.NetworkResourceTypeImage, true},
		{"image without flag", InterceptFlags{}, "https://example.com/a.png", proto.NetworkResourceTypeImage, false},
		{"stylesheet blocked", InterceptFlags{BlockStylesheets: true}, "https://example.com/a.css", proto.NetworkResourceTypeStylesheet, true},
		{"script blocked", InterceptFlags{BlockJavascript: true}, "https://example.com/vendor.js", proto.NetworkResourceTypeScript, true},
		{"framework allowlist bypasses js block", InterceptFlags{BlockJavascript: true}, "https://cdn/react.production.min.js", proto.NetworkResourceTypeScript, false},
		{"embedded script under only_html", InterceptFlags{OnlyHTML: true}, "https://www.youtube.com/embed/xyz", proto.NetworkResourceTypeScript, true},
		{"analytics script", InterceptFlags{BlockAnalytics: true}, "https://www.google-analytics.com/ga.js", proto.NetworkResourceTypeScript, true},
		{"analytics off lets tracker through", InterceptFlags{}, "https://www.google-analytics.com/ga.js", proto.NetworkResourceTypeScript, false},
		{"document continues", InterceptFlags{IgnoreVisuals: true, BlockAnalytics: true}, "https://example.com/", proto.NetworkResourceTypeDocument, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.flags)
			m.OnRequestPaused(pausedEvent("i1", "r1", tt.url, tt.rt))

			cmds := pollCommands(m)
			if len(cmds) != 1 {
				t.Fatalf("commands = %d, want 1", len(cmds))
			}
			if tt.skip {
				if _, ok := cmds[0].(*proto.FetchFulfillRequest); !ok {
					t.Fatalf("expected fulfillRequest, got %T", cmds[0])
				}
				fulfill := cmds[0].(*proto.FetchFulfillRequest)
				if fulfill.ResponseCode != 200 || len(fulfill.Body) != 0 {
					t.Errorf("fulfill = %d %q, want empty 200", fulfill.ResponseCode, fulfill.Body)
				}
			} else {
				if _, ok := cmds[0].(*proto.FetchContinueRequest); !ok {
					t.Fatalf("expected continueRequest, got %T", cmds[0])
				}
			}
		})
	}
}

func TestSkipLadder_XHR(t *testing.T) {
	tests := []struct {
		name  string
		flags InterceptFlags
		url   string
		skip  bool
	}{
		{"analytics xhr", InterceptFlags{BlockAnalytics: true}, "https://play.google.com/log?x=1", true},
		{"css extension under block_stylesheets", InterceptFlags{BlockStylesheets: true}, "https://example.com/style.css", true},
		{"visual extension under only_html", InterceptFlags{IgnoreVisuals: true, OnlyHTML: true}, "https://example.com/photo.jpeg", true},
		{"visual extension without only_html", InterceptFlags{IgnoreVisuals: true}, "https://example.com/photo.jpeg", false},
		{"media player api under visuals", InterceptFlags{IgnoreVisuals: true}, "https://api.spotify.com/v1/tracks", true},
		{"plain api xhr", InterceptFlags{BlockAnalytics: true, BlockStylesheets: true}, "https://example.com/api/data", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.flags)
			m.OnRequestPaused(pausedEvent("i1", "r1", tt.url, proto.NetworkResourceTypeXHR))

			cmds := pollCommands(m)
			if len(cmds) != 1 {
				t.Fatalf("commands = %d, want 1", len(cmds))
			}
			_, fulfilled := cmds[0].(*proto.FetchFulfillRequest)
			if fulfilled != tt.skip {
				t.Errorf("fulfilled = %v, want %v (%T)", fulfilled, tt.skip, cmds[0])
			}
		})
	}
}

func TestPausedPairsWithBufferedWillBeSent(t *testing.T) {
	m := newTestManager(InterceptFlags{IgnoreVisuals: true})

	// The will-be-sent arrives first and is buffered (no pre-assigned id).
	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/a.png", proto.NetworkResourceTypeImage))
	if ev := m.Poll(); ev != nil {
		t.Fatalf("buffering should queue nothing, got %T", ev)
	}

	// The paused event pairs with the buffer and continues, even though an
	// unpaired image would have been skipped under ignore_visuals.
	m.OnRequestPaused(pausedEvent("i1", "r1", "https://example.com/a.png", proto.NetworkResourceTypeImage))

	started := false
	continued := false
	for {
		ev := m.Poll()
		if ev == nil {
			break
		}
		switch e := ev.(type) {
		case *RequestStarted:
			started = true
		case *SendCommand:
			if _, ok := e.Command.(*proto.FetchContinueRequest); ok {
				continued = true
			}
		}
	}
	if !started || !continued {
		t.Errorf("started = %v, continued = %v; want both", started, continued)
	}

	req := m.requests["r1"]
	if req == nil || req.InterceptionID != "i1" {
		t.Errorf("record should carry the interception id, got %+v", req)
	}
}

func TestPausedPreAssignsInterceptionID(t *testing.T) {
	m := newTestManager(InterceptFlags{})

	// Paused arrives first; the request continues and the id is pre-assigned.
	m.OnRequestPaused(pausedEvent("i1", "r1", "https://example.com/app.js", proto.NetworkResourceTypeScript))
	pollCommands(m)

	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/app.js", proto.NetworkResourceTypeScript))

	req := m.requests["r1"]
	if req == nil || req.InterceptionID != "i1" {
		t.Errorf("pre-assigned interception id not applied, got %+v", req)
	}
	if len(m.pendingWillBeSent) != 0 {
		t.Error("pairing should consume, not buffer")
	}
}

func TestDataURLNeverPaired(t *testing.T) {
	m := newTestManager(InterceptFlags{})

	m.OnRequestWillBeSent(willBeSentEvent("r1", "data:text/plain;base64,aGk=", proto.NetworkResourceTypeOther))

	if len(m.pendingWillBeSent) != 0 {
		t.Error("data: URLs must not be buffered for pairing")
	}
	if m.requests["r1"] == nil {
		t.Error("data: URLs are tracked directly")
	}
}

func TestLoadingFinishedRemovesRecordOnce(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/", proto.NetworkResourceTypeDocument))
	for m.Poll() != nil {
	}

	m.OnLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "r1"})

	if _, ok := m.requests["r1"]; ok {
		t.Error("record must be gone after loadingFinished")
	}

	finished := 0
	for {
		ev := m.Poll()
		if ev == nil {
			break
		}
		if _, ok := ev.(*RequestFinished); ok {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("RequestFinished emitted %d times, want 1", finished)
	}

	// A duplicate event is ignored.
	m.OnLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "r1"})
	if ev := m.Poll(); ev != nil {
		t.Errorf("duplicate loadingFinished should queue nothing, got %T", ev)
	}
}

func TestLoadingFailedCarriesErrorText(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/x", proto.NetworkResourceTypeFetch))
	for m.Poll() != nil {
	}

	m.OnLoadingFailed(&proto.NetworkLoadingFailed{RequestID: "r1", ErrorText: "net::ERR_CONNECTION_RESET"})

	ev := m.Poll()
	failed, ok := ev.(*RequestFailed)
	if !ok {
		t.Fatalf("expected RequestFailed, got %T", ev)
	}
	if failed.Request.FailureText != "net::ERR_CONNECTION_RESET" {
		t.Errorf("FailureText = %q", failed.Request.FailureText)
	}
}

func TestRedirectChainFolding(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/a", proto.NetworkResourceTypeDocument))

	redirected := willBeSentEvent("r1", "https://example.com/b", proto.NetworkResourceTypeDocument)
	redirected.RedirectResponse = &proto.NetworkResponse{URL: "https://example.com/a", Status: 301}
	m.OnRequestWillBeSent(redirected)

	req := m.requests["r1"]
	if req == nil {
		t.Fatal("terminal record missing")
	}
	if req.URL != "https://example.com/b" {
		t.Errorf("terminal URL = %q", req.URL)
	}
	if len(req.RedirectChain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(req.RedirectChain))
	}
	hop := req.RedirectChain[0]
	if hop.URL != "https://example.com/a" || hop.Response == nil || hop.Response.Status != 301 {
		t.Errorf("hop = %+v", hop)
	}
	if len(hop.RedirectChain) != 0 {
		t.Error("chain entries must not keep their own chains")
	}
}

func TestAuthRequiredOncePerInterception(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})
	m.Authenticate(Credentials{Username: "user", Password: "secret"})
	for m.Poll() != nil {
	}

	challenge := &proto.FetchAuthRequired{RequestID: "i9"}

	m.OnAuthRequired(challenge)
	cmds := pollCommands(m)
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	auth := cmds[0].(*proto.FetchContinueWithAuth)
	if auth.AuthChallengeResponse.Response != proto.FetchAuthChallengeResponseResponseProvideCredentials {
		t.Fatalf("first challenge = %v, want ProvideCredentials", auth.AuthChallengeResponse.Response)
	}
	if auth.AuthChallengeResponse.Username != "user" || auth.AuthChallengeResponse.Password != "secret" {
		t.Error("credentials should be attached")
	}

	m.OnAuthRequired(challenge)
	cmds = pollCommands(m)
	auth = cmds[0].(*proto.FetchContinueWithAuth)
	if auth.AuthChallengeResponse.Response != proto.FetchAuthChallengeResponseResponseCancelAuth {
		t.Fatalf("second challenge = %v, want CancelAuth", auth.AuthChallengeResponse.Response)
	}
}

func TestAuthRequiredWithoutCredentials(t *testing.T) {
	m := newTestManager(InterceptFlags{})

	m.OnAuthRequired(&proto.FetchAuthRequired{RequestID: "i1"})
	cmds := pollCommands(m)
	auth := cmds[0].(*proto.FetchContinueWithAuth)
	if auth.AuthChallengeResponse.Response != proto.FetchAuthChallengeResponseResponseDefault {
		t.Errorf("response = %v, want Default", auth.AuthChallengeResponse.Response)
	}
}

func TestAuthAttemptClearedOnFinish(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})
	m.Authenticate(Credentials{Username: "u", Password: "p"})
	m.SetRequestInterception(true)
	for m.Poll() != nil {
	}

	m.OnRequestPaused(pausedEvent("i1", "r1", "https://example.com/", proto.NetworkResourceTypeDocument))
	m.OnAuthRequired(&proto.FetchAuthRequired{RequestID: "i1"})
	m.OnRequestWillBeSent(willBeSentEvent("r1", "https://example.com/", proto.NetworkResourceTypeDocument))
	for m.Poll() != nil {
	}

	m.OnLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "r1"})

	if _, ok := m.attemptedAuth["i1"]; ok {
		t.Error("auth attempt should be cleared when the request finishes")
	}
}

func TestSetOfflineModeIdempotent(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.SetOfflineMode(false)
	if cmds := pollCommands(m); len(cmds) != 0 {
		t.Fatalf("no-op toggle queued %d commands", len(cmds))
	}

	m.SetOfflineMode(true)
	cmds := pollCommands(m)
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	cond := cmds[0].(*proto.NetworkEmulateNetworkConditions)
	if !cond.Offline || cond.Latency != 0 || cond.DownloadThroughput != -1 || cond.UploadThroughput != -1 {
		t.Errorf("conditions = %+v", cond)
	}

	m.SetOfflineMode(true)
	if cmds := pollCommands(m); len(cmds) != 0 {
		t.Fatalf("repeat toggle queued %d commands", len(cmds))
	}
}

func TestSetExtraHeadersDropsProxyAuthorization(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.SetExtraHeaders(map[string]string{
		"Referer":             "https://example.com/",
		"Proxy-Authorization": "Basic abc",
	})

	if _, ok := m.ExtraHeaders()["Proxy-Authorization"]; ok {
		t.Error("proxy-authorization must be dropped")
	}
	if m.ExtraHeaders()["Referer"] != "https://example.com/" {
		t.Error("other headers must survive")
	}

	cmds := pollCommands(m)
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	set := cmds[0].(*proto.NetworkSetExtraHTTPHeaders)
	if _, ok := set.Headers["Proxy-Authorization"]; ok {
		t.Error("proxy-authorization must not reach the wire")
	}
}

func TestProtocolInterceptionToggle(t *testing.T) {
	m := NewNetworkManager(true, time.Second, InterceptFlags{})

	m.SetRequestInterception(true)
	cmds := pollCommands(m)
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want cacheDisabled + fetchEnable", len(cmds))
	}
	if cache, ok := cmds[0].(*proto.NetworkSetCacheDisabled); !ok || !cache.CacheDisabled {
		t.Errorf("first command = %+v, want setCacheDisabled(true)", cmds[0])
	}
	enable, ok := cmds[1].(*proto.FetchEnable)
	if !ok || !enable.HandleAuthRequests {
		t.Fatalf("second command = %+v, want fetchEnable with auth handling", cmds[1])
	}
	if len(enable.Patterns) != 1 || enable.Patterns[0].URLPattern != "*" {
		t.Errorf("patterns = %+v", enable.Patterns)
	}

	// Toggling to the same effective state queues nothing.
	m.SetRequestInterception(true)
	if cmds := pollCommands(m); len(cmds) != 0 {
		t.Fatalf("same-state toggle queued %d commands", len(cmds))
	}

	m.SetRequestInterception(false)
	cmds = pollCommands(m)
	if len(cmds) != 2 {
		t.Fatalf("disable commands = %d, want 2", len(cmds))
	}
	if _, ok := cmds[1].(*proto.FetchDisable); !ok {
		t.Errorf("second command = %T, want fetchDisable", cmds[1])
	}
}

func TestCommandOrderIsFIFO(t *testing.T) {
	m := newTestManager(InterceptFlags{IgnoreVisuals: true})

	for i := 0; i < 4; i++ {
		m.OnRequestPaused(pausedEvent(
			fmt.Sprintf("i%d", i), fmt.Sprintf("r%d", i),
			fmt.Sprintf("https://example.com/img%d.png", i),
			proto.NetworkResourceTypeImage,
		))
	}

	cmds := pollCommands(m)
	if len(cmds) != 4 {
		t.Fatalf("commands = %d, want 4", len(cmds))
	}
	for i, cmd := range cmds {
		fulfill, ok := cmd.(*proto.FetchFulfillRequest)
		if !ok {
			t.Fatalf("cmd %d = %T", i, cmd)
		}
		want := proto.FetchRequestID(fmt.Sprintf("i%d", i))
		if fulfill.RequestID != want {
			t.Errorf("cmd %d for %q, want %q", i, fulfill.RequestID, want)
		}
	}
}
