package frontier

import (
	"fmt"
	"net/url"
	"sync"
	"testing"
)

func mustScope(t *testing.T, seed string, subdomains, tld bool, blacklist, whitelist []string) *Scope {
	t.Helper()
	u, err := url.Parse(seed)
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	return NewScope(u, subdomains, tld, blacklist, whitelist)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path", false},
		{"strips fragment", "https://example.com/a#section", "https://example.com/a", false},
		{"keeps query case", "https://example.com/a?Q=V", "https://example.com/a?Q=V", false},
		{"relative url rejected", "/just/a/path", "", true},
		{"garbage rejected", "://nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Canonicalize(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Canonicalize(%q) expected error, got %q", tt.raw, u.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tt.raw, err)
			}
			if u.String() != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.raw, u.String(), tt.want)
			}
		})
	}
}

func TestScope_HostRules(t *testing.T) {
	tests := []struct {
		name       string
		subdomains bool
		tld        bool
		target     string
		want       bool
	}{
		{"same host", false, false, "https://example.com/page", true},
		{"subdomain denied by default", false, false, "https://docs.example.com/", false},
		{"subdomain allowed", true, false, "https://docs.example.com/", true},
		{"tld sibling denied by default", false, false, "https://example.org/", false},
		{"tld sibling allowed", false, true, "https://example.org/", true},
		{"unrelated host", true, true, "https://other.com/", false},
		{"non-http scheme", true, true, "ftp://example.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := mustScope(t, "https://example.com", tt.subdomains, tt.tld, nil, nil)
			u, _ := url.Parse(tt.target)
			if got := scope.Allows(u); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestScope_PatternLists(t *testing.T) {
	scope := mustScope(t, "https://example.com", false, false,
		[]string{"/resume"}, nil)
	u, _ := url.Parse("https://example.com/resume")
	if scope.Allows(u) {
		t.Error("blacklisted URL should be denied")
	}

	scope = mustScope(t, "https://example.com", false, false,
		nil, []string{"/blog/"})
	blog, _ := url.Parse("https://example.com/blog/post")
	other, _ := url.Parse("https://example.com/shop")
	if !scope.Allows(blog) {
		t.Error("whitelisted URL should be allowed")
	}
	if scope.Allows(other) {
		t.Error("non-whitelisted URL should be denied when a whitelist exists")
	}

	// Blacklist wins over whitelist.
	scope = mustScope(t, "https://example.com", false, false,
		[]string{"draft"}, []string{"/blog/"})
	draft, _ := url.Parse("https://example.com/blog/draft-post")
	if scope.Allows(draft) {
		t.Error("blacklist should win over whitelist")
	}
}

func TestFrontier_DedupIsPermanent(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 0, 0)

	if !f.Add("https://example.com/a", 0) {
		t.Fatal("first add should succeed")
	}
	if f.Add("https://example.com/a", 0) {
		t.Fatal("second add of the same URL should be dropped")
	}
	if f.Add("https://example.com/a#frag", 0) {
		t.Fatal("fragment variant should dedup to the same key")
	}

	entry, ok := f.Pop()
	if !ok || entry.URL != "https://example.com/a" {
		t.Fatalf("Pop() = %+v, %v", entry, ok)
	}

	// Popped URLs never come back, even after re-adding.
	if f.Add("https://example.com/a", 0) {
		t.Fatal("re-add after pop should be dropped")
	}
	if _, ok := f.Pop(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestFrontier_FIFO(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 0, 0)
	for i := 0; i < 5; i++ {
		f.Add(fmt.Sprintf("https://example.com/p%d", i), 0)
	}
	for i := 0; i < 5; i++ {
		entry, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue drained early", i)
		}
		want := fmt.Sprintf("https://example.com/p%d", i)
		if entry.URL != want {
			t.Errorf("Pop %d = %q, want %q", i, entry.URL, want)
		}
	}
}

func TestFrontier_Limit(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 3, 0)
	added := 0
	for i := 0; i < 10; i++ {
		if f.Add(fmt.Sprintf("https://example.com/p%d", i), 0) {
			added++
		}
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}
	if f.VisitedLen() != 3 {
		t.Errorf("VisitedLen() = %d, want 3", f.VisitedLen())
	}
}

func TestFrontier_Depth(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 0, 2)
	if !f.Add("https://example.com/ok", 2) {
		t.Error("depth at the limit should be accepted")
	}
	if f.Add("https://example.com/deep", 3) {
		t.Error("depth beyond the limit should be dropped")
	}
}

func TestFrontier_OutOfScopeDropped(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 0, 0)
	if f.Add("https://other.com/", 0) {
		t.Error("out-of-scope URL should be dropped")
	}
	if f.VisitedLen() != 0 {
		t.Error("dropped URLs must not count as visited")
	}
}

func TestFrontier_ConcurrentAddPop(t *testing.T) {
	f := New(mustScope(t, "https://example.com", true, false, nil, nil), 0, 0)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				// Every worker adds the same URLs; dedup must hold.
				f.Add(fmt.Sprintf("https://example.com/p%d", i), 0)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]int)
	for {
		entry, ok := f.Pop()
		if !ok {
			break
		}
		seen[entry.URL]++
	}
	if len(seen) != 100 {
		t.Fatalf("unique popped URLs = %d, want 100", len(seen))
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("URL %q popped %d times", u, n)
		}
	}
}

func TestFrontier_SnapshotIsCopy(t *testing.T) {
	f := New(mustScope(t, "https://example.com", false, false, nil, nil), 0, 0)
	f.Add("https://example.com/a", 0)

	snap := f.SnapshotVisited()
	delete(snap, "https://example.com/a")

	if f.VisitedLen() != 1 {
		t.Error("mutating the snapshot must not affect the frontier")
	}
}
