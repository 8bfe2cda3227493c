// Package cache is a small in-memory LRU for scrape responses, so repeated
// scrapes of hot URLs skip the fetch entirely.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/abdulrahman305/spider/models"
)

// hardTTL is the age past which an entry is useless no matter what max-age
// the client asked for.
const hardTTL = 1 * time.Hour

// entry is one cached response; it lives in the LRU list.
type entry struct {
	key       string
	response  *models.ScrapeResponse
	createdAt time.Time
}

// Cache is safe for concurrent use. Eviction is least-recently-used, with
// expired entries reaped lazily as they are touched — there is no background
// goroutine.
type Cache struct {
	mu         sync.Mutex
	byKey      map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
}

// New creates a Cache bounded to maxEntries.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		byKey:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

// Key generates a cache key from the URL and output format.
func Key(url, outputFormat string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(outputFormat))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached response younger than maxAgeMs milliseconds and marks
// it recently used. maxAgeMs <= 0 disables the lookup; expired entries are
// removed on the spot.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry)

	age := time.Since(e.createdAt)
	if age > hardTTL {
		c.removeLocked(elem)
		return nil, false
	}
	if age > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}

	c.order.MoveToFront(elem)
	return e.response, true
}

// Set stores a response under key, evicting the least-recently-used entry
// when the cache is full.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.byKey[key]; ok {
		e := elem.Value.(*entry)
		e.response = resp
		e.createdAt = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxEntries {
		c.removeLocked(c.order.Back())
	}

	c.byKey[key] = c.order.PushFront(&entry{
		key:       key,
		response:  resp,
		createdAt: time.Now(),
	})
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// removeLocked drops an element from both indexes. Caller holds mu.
func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	delete(c.byKey, e.key)
	c.order.Remove(elem)
}
