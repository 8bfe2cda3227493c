// Package hub broadcasts completed pages to subscribers. Each receiver owns
// an independent bounded ring; a slow receiver loses its oldest items and is
// told how many it lost, but never blocks the publisher or its peers.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abdulrahman305/spider/models"
)

// ErrClosed is returned by Recv after the hub closed and the ring drained.
var ErrClosed = errors.New("hub: closed")

// LagError reports items dropped for a receiver since its last Recv. The next
// Recv call after a LagError resumes from the oldest retained item.
type LagError struct {
	Dropped int
}

func (e *LagError) Error() string {
	return fmt.Sprintf("hub: receiver lagged, dropped %d items", e.Dropped)
}

// Receiver consumes the page stream. Not safe for concurrent Recv calls.
type Receiver struct {
	mu      sync.Mutex
	ring    []*models.Page
	head    int // index of the oldest item
	count   int
	dropped int
	closed  bool
	result  *models.CrawlResult

	// notify wakes a blocked Recv; buffered so publishes never block.
	notify chan struct{}
}

// Hub is the broadcast primitive. Publish is non-blocking.
type Hub struct {
	mu        sync.Mutex
	receivers []*Receiver
	closed    bool
	result    *models.CrawlResult
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{}
}

// Subscribe registers a receiver with the given ring capacity (minimum 1).
func (h *Hub) Subscribe(capacity int) *Receiver {
	if capacity < 1 {
		capacity = 1
	}
	r := &Receiver{
		ring:   make([]*models.Page, capacity),
		notify: make(chan struct{}, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		r.closed = true
		r.result = h.result
		return r
	}
	h.receivers = append(h.receivers, r)
	return r
}

// Publish appends page to every receiver's ring, evicting the oldest item of
// any ring that is full. It never blocks.
func (h *Hub) Publish(page *models.Page) {
	h.mu.Lock()
	receivers := h.receivers
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	for _, r := range receivers {
		r.push(page)
	}
}

// Close delivers the terminal crawl result to all receivers. Receivers drain
// their remaining items before observing ErrClosed.
func (h *Hub) Close(result models.CrawlResult) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.result = &result
	receivers := h.receivers
	h.mu.Unlock()

	for _, r := range receivers {
		r.close(&result)
	}
}

// Recv returns the next page in publish order. It returns a *LagError once
// after items were dropped, ErrClosed after the hub closed and the ring
// drained, or ctx.Err() on cancellation.
func (r *Receiver) Recv(ctx context.Context) (*models.Page, error) {
	for {
		r.mu.Lock()
		if r.dropped > 0 {
			n := r.dropped
			r.dropped = 0
			r.mu.Unlock()
			return nil, &LagError{Dropped: n}
		}
		if r.count > 0 {
			page := r.ring[r.head]
			r.ring[r.head] = nil
			r.head = (r.head + 1) % len(r.ring)
			r.count--
			r.mu.Unlock()
			return page, nil
		}
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.notify:
		}
	}
}

// Result returns the terminal crawl result, nil before the hub closes.
func (r *Receiver) Result() *models.CrawlResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Receiver) push(page *models.Page) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.count == len(r.ring) {
		// Evict the oldest; the receiver learns on its next Recv.
		r.ring[r.head] = nil
		r.head = (r.head + 1) % len(r.ring)
		r.count--
		r.dropped++
	}
	tail := (r.head + r.count) % len(r.ring)
	r.ring[tail] = page
	r.count++
	r.mu.Unlock()

	r.wake()
}

func (r *Receiver) close(result *models.CrawlResult) {
	r.mu.Lock()
	r.closed = true
	r.result = result
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
