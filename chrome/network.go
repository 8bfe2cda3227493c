// Package chrome drives a headless browser over CDP: a transport-ignorant
// network manager that filters every subresource, and the session plumbing
// that binds it to a live page.
package chrome

import (
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/abdulrahman305/spider/blocklist"
)

// Credentials answer proxy or server auth challenges.
type Credentials struct {
	Username string
	Password string
}

// HTTPRequest is the tracked record for one network request.
type HTTPRequest struct {
	RequestID      proto.NetworkRequestID
	FrameID        proto.PageFrameID
	InterceptionID proto.FetchRequestID // empty when the request was never paused
	URL            string
	ResourceType   proto.NetworkResourceType

	FromMemoryCache bool
	FailureText     string
	Response        *proto.NetworkResponse

	// RedirectChain lists the prior hops, oldest first, owned by the
	// terminal record.
	RedirectChain []*HTTPRequest
}

// Event is an output of the manager. The transport polls events one at a
// time and in the order handlers queued them.
type Event interface{ networkEvent() }

// SendCommand asks the transport to issue a CDP command.
type SendCommand struct {
	Command proto.Request
}

// RequestStarted announces a newly tracked request.
type RequestStarted struct {
	RequestID proto.NetworkRequestID
}

// RequestFinished carries a completed request's record.
type RequestFinished struct {
	Request *HTTPRequest
}

// RequestFailed carries a failed request's record with FailureText set.
type RequestFailed struct {
	Request *HTTPRequest
}

func (*SendCommand) networkEvent()     {}
func (*RequestStarted) networkEvent()  {}
func (*RequestFinished) networkEvent() {}
func (*RequestFailed) networkEvent()   {}

// InterceptFlags are the per-crawl interception knobs.
type InterceptFlags struct {
	// IgnoreVisuals skips images, media, fonts, and other visual resources.
	IgnoreVisuals bool

	// BlockStylesheets skips CSS.
	BlockStylesheets bool

	// BlockJavascript skips scripts not on the framework allowlist.
	BlockJavascript bool

	// BlockAnalytics skips tracker and analytics scripts.
	BlockAnalytics bool

	// OnlyHTML skips everything not needed for the document itself.
	OnlyHTML bool
}

// NetworkManager is the per-page state machine over CDP network events. It
// correlates requests across their lifecycle, decides per paused request
// whether to continue or fulfill with an empty 200 (only auth challenges are
// ever cancelled), and queues the resulting commands for the transport.
//
// The manager is single-owner: exactly one goroutine (the session event loop)
// may call its methods.
type NetworkManager struct {
	queuedEvents []Event

	ignoreHTTPSErrors bool
	requestTimeout    time.Duration

	requests          map[proto.NetworkRequestID]*HTTPRequest
	pendingWillBeSent map[proto.NetworkRequestID]*proto.NetworkRequestWillBeSent
	ridToIID          map[proto.NetworkRequestID]proto.FetchRequestID
	attemptedAuth     map[proto.FetchRequestID]struct{}

	extraHeaders map[string]string
	credentials  *Credentials

	userCacheDisabled                  bool
	userRequestInterceptionEnabled     bool
	protocolRequestInterceptionEnabled bool
	offline                            bool

	flags InterceptFlags
}

// NewNetworkManager creates a manager with the given interception flags.
func NewNetworkManager(ignoreHTTPSErrors bool, requestTimeout time.Duration, flags InterceptFlags) *NetworkManager {
	return &NetworkManager{
		ignoreHTTPSErrors: ignoreHTTPSErrors,
		requestTimeout:    requestTimeout,
		requests:          make(map[proto.NetworkRequestID]*HTTPRequest),
		pendingWillBeSent: make(map[proto.NetworkRequestID]*proto.NetworkRequestWillBeSent),
		ridToIID:          make(map[proto.NetworkRequestID]proto.FetchRequestID),
		attemptedAuth:     make(map[proto.FetchRequestID]struct{}),
		extraHeaders:      make(map[string]string),
		flags:             flags,
	}
}

// InitCommands returns the commands the transport must send before any
// navigation: network event delivery, and certificate leniency when enabled.
func (m *NetworkManager) InitCommands() []proto.Request {
	cmds := []proto.Request{&proto.NetworkEnable{}}
	if m.ignoreHTTPSErrors {
		cmds = append(cmds, &proto.SecuritySetIgnoreCertificateErrors{Ignore: true})
	}
	return cmds
}

// Poll returns the next queued event, nil when the queue is empty.
func (m *NetworkManager) Poll() Event {
	if len(m.queuedEvents) == 0 {
		return nil
	}
	ev := m.queuedEvents[0]
	m.queuedEvents = m.queuedEvents[1:]
	return ev
}

func (m *NetworkManager) pushCommand(cmd proto.Request) {
	m.queuedEvents = append(m.queuedEvents, &SendCommand{Command: cmd})
}

// ExtraHeaders returns the headers injected into every request.
func (m *NetworkManager) ExtraHeaders() map[string]string {
	return m.extraHeaders
}

// SetExtraHeaders stores headers (minus any proxy-authorization entry, which
// must never leak to origin servers) and queues the protocol update.
func (m *NetworkManager) SetExtraHeaders(headers map[string]string) {
	m.extraHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "proxy-authorization") {
			continue
		}
		m.extraHeaders[k] = v
	}

	protoHeaders := make(proto.NetworkHeaders, len(m.extraHeaders))
	for k, v := range m.extraHeaders {
		protoHeaders[k] = headerValue(v)
	}
	m.pushCommand(&proto.NetworkSetExtraHTTPHeaders{Headers: protoHeaders})
}

// SetRequestInterception toggles the user-facing interception policy.
func (m *NetworkManager) SetRequestInterception(enabled bool) {
	m.userRequestInterceptionEnabled = enabled
	m.updateProtocolRequestInterception()
}

// SetCacheEnabled toggles the browser cache.
func (m *NetworkManager) SetCacheEnabled(enabled bool) {
	m.userCacheDisabled = !enabled
	m.updateProtocolCacheDisabled()
}

// Authenticate installs credentials for auth challenges. Credentials imply
// protocol-level interception even when the user policy is off.
func (m *NetworkManager) Authenticate(credentials Credentials) {
	m.credentials = &credentials
	m.updateProtocolRequestInterception()
}

// SetOfflineMode emulates a severed network. Calling with the current value
// is a no-op.
func (m *NetworkManager) SetOfflineMode(offline bool) {
	if m.offline == offline {
		return
	}
	m.offline = offline
	m.pushCommand(&proto.NetworkEmulateNetworkConditions{
		Offline:            offline,
		Latency:            0,
		DownloadThroughput: -1,
		UploadThroughput:   -1,
	})
}

func (m *NetworkManager) updateProtocolCacheDisabled() {
	m.pushCommand(&proto.NetworkSetCacheDisabled{
		CacheDisabled: m.userCacheDisabled || m.protocolRequestInterceptionEnabled,
	})
}

func (m *NetworkManager) updateProtocolRequestInterception() {
	enabled := m.userRequestInterceptionEnabled || m.credentials != nil
	if enabled == m.protocolRequestInterceptionEnabled {
		return
	}
	m.protocolRequestInterceptionEnabled = enabled
	m.updateProtocolCacheDisabled()

	if enabled {
		m.pushCommand(&proto.FetchEnable{
			HandleAuthRequests: true,
			Patterns:           []*proto.FetchRequestPattern{{URLPattern: "*"}},
		})
	} else {
		m.pushCommand(&proto.FetchDisable{})
	}
}

// OnRequestPaused handles a request held at the Fetch domain. Pairing with a
// buffered requestWillBeSent takes priority; otherwise the skip ladder
// decides between an empty 200 fulfillment and continuation.
func (m *NetworkManager) OnRequestPaused(ev *proto.FetchRequestPaused) {
	if !m.userRequestInterceptionEnabled && m.protocolRequestInterceptionEnabled {
		// Interception is on only for credentials; let everything through.
		m.pushCommand(&proto.FetchContinueRequest{RequestID: ev.RequestID})
		return
	}
	if ev.NetworkID == "" {
		m.pushCommand(&proto.FetchContinueRequest{RequestID: ev.RequestID})
		return
	}

	if willBeSent, ok := m.pendingWillBeSent[ev.NetworkID]; ok {
		delete(m.pendingWillBeSent, ev.NetworkID)
		m.onRequest(willBeSent, ev.RequestID)
		m.pushCommand(&proto.FetchContinueRequest{RequestID: ev.RequestID})
		return
	}

	if m.skipResource(ev) {
		m.pushCommand(&proto.FetchFulfillRequest{
			RequestID:    ev.RequestID,
			ResponseCode: 200,
		})
		return
	}

	// Pre-assign the interception id so the upcoming requestWillBeSent
	// pairs without buffering.
	m.ridToIID[ev.NetworkID] = ev.RequestID
	m.pushCommand(&proto.FetchContinueRequest{RequestID: ev.RequestID})
}

// skipResource evaluates the skip ladder; first match wins.
func (m *NetworkManager) skipResource(ev *proto.FetchRequestPaused) bool {
	url := ev.Request.URL
	javascript := ev.ResourceType == proto.NetworkResourceTypeScript

	skip := ignoredNetworkingResource(ev.ResourceType) ||
		m.flags.IgnoreVisuals && ignoredVisualResource(ev.ResourceType) ||
		m.flags.BlockStylesheets && ev.ResourceType == proto.NetworkResourceTypeStylesheet ||
		m.flags.BlockJavascript && javascript && !blocklist.JSFrameworkAllowed(url)

	if !skip && (m.flags.OnlyHTML || m.flags.IgnoreVisuals) &&
		(javascript || ev.ResourceType == proto.NetworkResourceTypeDocument) {
		skip = blocklist.IgnoreScriptEmbedded(url)
	}

	if !skip && javascript && m.flags.BlockAnalytics {
		skip = blocklist.IgnoreScript(url)
	}

	return m.skipXHR(skip, ev)
}

// skipXHR extends the ladder for XHR requests: analytics endpoints first,
// then asset extensions (media before css), then media player APIs.
func (m *NetworkManager) skipXHR(skip bool, ev *proto.FetchRequestPaused) bool {
	if skip || ev.ResourceType != proto.NetworkResourceTypeXHR {
		return skip
	}
	url := ev.Request.URL

	if m.flags.BlockAnalytics && blocklist.IgnoreScriptXHR(url) {
		return true
	}

	if m.flags.BlockStylesheets || m.flags.IgnoreVisuals {
		blockCSS := m.flags.BlockStylesheets
		blockMedia := m.flags.IgnoreVisuals && m.flags.OnlyHTML

		blockRequest := false
		if pos := strings.LastIndexByte(url, '.'); pos >= 0 && len(url)-pos >= 3 {
			ext := url[pos+1:]
			if blockMedia && blocklist.VisualAssetExtension(ext) {
				blockRequest = true
			} else if blockCSS && blocklist.CSSExtension(ext) {
				blockRequest = true
			}
		}
		if !blockRequest {
			blockRequest = blocklist.IgnoreScriptXHRMedia(url)
		}
		return blockRequest
	}

	return false
}

// OnRequestWillBeSent tracks a request announced by the Network domain.
// Interception never happens for data: URLs, so those are tracked directly.
func (m *NetworkManager) OnRequestWillBeSent(ev *proto.NetworkRequestWillBeSent) {
	if m.protocolRequestInterceptionEnabled && !strings.HasPrefix(ev.Request.URL, "data:") {
		if iid, ok := m.ridToIID[ev.RequestID]; ok {
			delete(m.ridToIID, ev.RequestID)
			m.onRequest(ev, iid)
		} else {
			m.pendingWillBeSent[ev.RequestID] = ev
		}
		return
	}
	m.onRequest(ev, "")
}

// OnRequestServedFromCache flags the record as a memory-cache hit.
func (m *NetworkManager) OnRequestServedFromCache(ev *proto.NetworkRequestServedFromCache) {
	if request, ok := m.requests[ev.RequestID]; ok {
		request.FromMemoryCache = true
	}
}

// OnResponseReceived attaches the response and completes the record.
func (m *NetworkManager) OnResponseReceived(ev *proto.NetworkResponseReceived) {
	request, ok := m.requests[ev.RequestID]
	if !ok {
		return
	}
	delete(m.requests, ev.RequestID)
	request.Response = ev.Response
	m.forgetAuthAttempt(request)
	m.queuedEvents = append(m.queuedEvents, &RequestFinished{Request: request})
}

// OnLoadingFinished completes a record that never saw responseReceived
// (e.g. fulfilled interceptions). After handling, the request id is gone and
// exactly one RequestFinished has been emitted for it.
func (m *NetworkManager) OnLoadingFinished(ev *proto.NetworkLoadingFinished) {
	request, ok := m.requests[ev.RequestID]
	if !ok {
		return
	}
	delete(m.requests, ev.RequestID)
	m.forgetAuthAttempt(request)
	m.queuedEvents = append(m.queuedEvents, &RequestFinished{Request: request})
}

// OnLoadingFailed records the failure text and completes the record.
func (m *NetworkManager) OnLoadingFailed(ev *proto.NetworkLoadingFailed) {
	request, ok := m.requests[ev.RequestID]
	if !ok {
		return
	}
	delete(m.requests, ev.RequestID)
	request.FailureText = ev.ErrorText
	m.forgetAuthAttempt(request)
	m.queuedEvents = append(m.queuedEvents, &RequestFailed{Request: request})
}

// OnAuthRequired answers an auth challenge. Credentials are offered at most
// once per interception id; a second challenge cancels.
func (m *NetworkManager) OnAuthRequired(ev *proto.FetchAuthRequired) {
	response := proto.FetchAuthChallengeResponseResponseDefault
	if _, attempted := m.attemptedAuth[ev.RequestID]; attempted {
		response = proto.FetchAuthChallengeResponseResponseCancelAuth
	} else if m.credentials != nil {
		m.attemptedAuth[ev.RequestID] = struct{}{}
		response = proto.FetchAuthChallengeResponseResponseProvideCredentials
	}

	auth := &proto.FetchAuthChallengeResponse{Response: response}
	if m.credentials != nil {
		auth.Username = m.credentials.Username
		auth.Password = m.credentials.Password
	}
	m.pushCommand(&proto.FetchContinueWithAuth{
		RequestID:             ev.RequestID,
		AuthChallengeResponse: auth,
	})
}

// onRequest installs a new record. A redirect response on the event folds the
// previous record into the new record's redirect chain.
func (m *NetworkManager) onRequest(ev *proto.NetworkRequestWillBeSent, interceptionID proto.FetchRequestID) {
	var redirectChain []*HTTPRequest
	if ev.RedirectResponse != nil {
		if prev, ok := m.requests[ev.RequestID]; ok {
			delete(m.requests, ev.RequestID)
			prev.Response = ev.RedirectResponse
			m.forgetAuthAttempt(prev)
			redirectChain = prev.RedirectChain
			prev.RedirectChain = nil
			redirectChain = append(redirectChain, prev)
		}
	}

	request := &HTTPRequest{
		RequestID:      ev.RequestID,
		FrameID:        ev.FrameID,
		InterceptionID: interceptionID,
		URL:            ev.Request.URL,
		ResourceType:   ev.Type,
		RedirectChain:  redirectChain,
	}
	m.requests[ev.RequestID] = request
	m.queuedEvents = append(m.queuedEvents, &RequestStarted{RequestID: ev.RequestID})
}

func (m *NetworkManager) forgetAuthAttempt(request *HTTPRequest) {
	if request.InterceptionID != "" {
		delete(m.attemptedAuth, request.InterceptionID)
	}
}

// headerValue converts a plain string to the gson value the proto headers
// map requires.
func headerValue(v string) gson.JSON {
	return gson.New(v)
}

func ignoredNetworkingResource(t proto.NetworkResourceType) bool {
	return t == proto.NetworkResourceTypePrefetch || t == proto.NetworkResourceTypePing
}

func ignoredVisualResource(t proto.NetworkResourceType) bool {
	switch t {
	case proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeMedia,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeOther:
		return true
	}
	return false
}
