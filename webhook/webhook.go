// Package webhook delivers HMAC-signed crawl lifecycle notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	// maxRetries is the number of additional delivery attempts after a
	// failed POST.
	maxRetries = 3

	// retryBase is the first backoff step; each retry doubles it.
	retryBase = 500 * time.Millisecond

	deliverTimeout = 10 * time.Second
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string      `json:"type"` // "crawl.page", "crawl.completed", "crawl.failed"
	JobID     string      `json:"job_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Notifier delivers events for one crawl job. A Notifier with an empty URL
// is valid and drops every event, so callers never branch on configuration.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// NewNotifier creates a Notifier for the given endpoint. secret, when
// non-empty, signs each request body with HMAC-SHA256 in the
// X-Spider-Signature header ("sha256=<hex>").
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: deliverTimeout},
	}
}

// Enabled reports whether the notifier has an endpoint to deliver to.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Send delivers one event synchronously, without retries.
func (n *Notifier) Send(ctx context.Context, event *Event) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Spider-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set("X-Spider-Signature", sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Notify delivers an event in the background, retrying failed attempts with
// exponential backoff (500ms doubled per attempt, jittered ±20%). Exhausted
// deliveries are logged and dropped; a crawl never blocks on its webhooks.
func (n *Notifier) Notify(event *Event) {
	if !n.Enabled() {
		return
	}
	go func() {
		var err error
		for attempt := 0; ; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			err = n.Send(ctx, event)
			cancel()
			if err == nil {
				return
			}
			if attempt >= maxRetries {
				break
			}

			backoff := retryBase << attempt
			jitter := time.Duration(rand.Int63n(int64(backoff)*2/5+1)) - backoff/5
			time.Sleep(backoff + jitter)
		}
		slog.Warn("webhook delivery failed",
			"url", n.url, "type", event.Type, "job", event.JobID, "error", err)
	}()
}

// sign computes the signature header value for a request body.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
