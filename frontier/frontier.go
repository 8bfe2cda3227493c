// Package frontier maintains the set of discovered URLs and the FIFO queue of
// URLs still waiting to be fetched. It deduplicates permanently, enforces
// scope, depth, and page-limit policy, and knows nothing about fetching.
package frontier

import (
	"errors"
	"net/url"
	"strings"
	"sync"
)

// Entry is one pending fetch.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is safe for concurrent use. Dedup is permanent: once a URL enters
// the visited set it can never be enqueued again, so every URL is popped at
// most once over the crawl's lifetime.
type Frontier struct {
	mu      sync.RWMutex
	scope   *Scope
	limit   int // max URLs admitted to visited; 0 = unbounded
	depth   int // max link depth; 0 = unbounded
	visited map[string]struct{}
	pending []Entry
}

// New creates a Frontier governed by the given scope, page limit, and depth
// limit.
func New(scope *Scope, limit, depth int) *Frontier {
	return &Frontier{
		scope:   scope,
		limit:   limit,
		depth:   depth,
		visited: make(map[string]struct{}),
	}
}

// Canonicalize normalizes a raw URL into its frontier key: absolute form,
// lowercased scheme and host, fragment stripped. Path and query keep their
// case. Returns an error for unparseable or relative input.
func Canonicalize(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "canonicalize", URL: raw, Err: errNotAbsolute}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u, nil
}

var errNotAbsolute = errors.New("not an absolute URL")

// Add canonicalizes raw and, if it is in scope, unseen, within depth, and
// under the page limit, records it as visited and appends it to pending.
// Returns true when the URL was enqueued.
func (f *Frontier) Add(raw string, depth int) bool {
	u, err := Canonicalize(raw)
	if err != nil {
		return false
	}
	if f.depth > 0 && depth > f.depth {
		return false
	}
	if f.scope != nil && !f.scope.Allows(u) {
		return false
	}
	key := u.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.visited[key]; seen {
		return false
	}
	if f.limit > 0 && len(f.visited) >= f.limit {
		return false
	}
	f.visited[key] = struct{}{}
	f.pending = append(f.pending, Entry{URL: key, Depth: depth})
	return true
}

// Pop removes and returns the oldest pending entry, FIFO. The second return
// is false when nothing is pending.
func (f *Frontier) Pop() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return Entry{}, false
	}
	entry := f.pending[0]
	f.pending = f.pending[1:]
	return entry, true
}

// PendingLen returns the number of queued URLs.
func (f *Frontier) PendingLen() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pending)
}

// VisitedLen returns the number of URLs ever admitted.
func (f *Frontier) VisitedLen() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.visited)
}

// SnapshotVisited returns a copy of the visited set.
func (f *Frontier) SnapshotVisited() map[string]struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snapshot := make(map[string]struct{}, len(f.visited))
	for k := range f.visited {
		snapshot[k] = struct{}{}
	}
	return snapshot
}

// Drain discards all pending entries, e.g. on cancellation.
func (f *Frontier) Drain() {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
}
