package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdulrahman305/spider/models"
)

// plainEngine is an HTTPEngine variant usable against httptest servers,
// bypassing the utls transport.
type plainEngine struct {
	client *http.Client
}

func (e *plainEngine) Name() string { return "http" }

func (e *plainEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Result{
		Body:          body,
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		ContentType:   resp.Header.Get("Content-Type"),
		FinalURL:      resp.Request.URL.String(),
		RedirectChain: redirectChain(resp),
		EngineName:    "http",
	}, nil
}

func TestRedirectChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := &plainEngine{client: srv.Client()}
	result, err := e.Fetch(context.Background(), &Request{URL: srv.URL + "/a"})
	if err != nil {
		t.Fatal(err)
	}

	if result.FinalURL != srv.URL+"/c" {
		t.Errorf("FinalURL = %q, want .../c", result.FinalURL)
	}
	want := []models.Redirect{
		{URL: srv.URL + "/a", StatusCode: http.StatusMovedPermanently},
		{URL: srv.URL + "/b", StatusCode: http.StatusFound},
	}
	if len(result.RedirectChain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(result.RedirectChain), len(want))
	}
	for i := range want {
		if result.RedirectChain[i] != want[i] {
			t.Errorf("chain[%d] = %+v, want %+v", i, result.RedirectChain[i], want[i])
		}
	}
}

func TestNeedsBrowser(t *testing.T) {
	longText := strings.Repeat("Plenty of readable article content here. ", 30)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"spa shell", `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`, true},
		{"noscript warning", `<html><body><p>` + longText + `</p><noscript>Please enable JavaScript to continue</noscript></body></html>`, true},
		{"static article", `<html><body><article>` + longText + `</article></body></html>`, false},
		{"tiny body", `<html><body><p>hi</p></body></html>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("NeedsBrowser() = %v, want %v", got, tt.want)
			}
		})
	}
}

// stubEngine returns canned results for dispatcher tests.
type stubEngine struct {
	name    string
	result  *Result
	err     error
	fetches int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	r.EngineName = s.name
	return &r, nil
}

func staticResult(body string) *Result {
	return &Result{Body: []byte(body), StatusCode: 200, FinalURL: "https://example.com/"}
}

func TestDispatcher_NoBrowserUsesHTTP(t *testing.T) {
	httpEng := &stubEngine{name: "http", result: staticResult("ok")}
	d := NewDispatcher(httpEng, nil, nil, true)

	result, err := d.Dispatch(context.Background(), &Request{URL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if result.EngineName != "http" {
		t.Errorf("EngineName = %q", result.EngineName)
	}
}

func TestDispatcher_SmartEscalatesOnShell(t *testing.T) {
	shell := `<html><body><div id="root"></div></body></html>`
	rendered := strings.Repeat("<p>Rendered content with plenty of text. </p>", 40)

	httpEng := &stubEngine{name: "http", result: staticResult(shell)}
	chromeEng := &stubEngine{name: "chrome", result: staticResult("<html><body>" + rendered + "</body></html>")}
	memory := NewDomainMemory(time.Hour)
	defer memory.Stop()

	d := NewDispatcher(httpEng, chromeEng, memory, true)
	result, err := d.Dispatch(context.Background(), &Request{URL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if result.EngineName != "chrome" {
		t.Errorf("EngineName = %q, want chrome", result.EngineName)
	}
	if memory.Get("example.com") != "chrome" {
		t.Error("winning engine should be remembered for the domain")
	}

	// Next dispatch goes straight to chrome.
	httpBefore := httpEng.fetches
	if _, err := d.Dispatch(context.Background(), &Request{URL: "https://example.com/other"}); err != nil {
		t.Fatal(err)
	}
	if httpEng.fetches != httpBefore {
		t.Error("remembered domain should skip the HTTP attempt")
	}
}

func TestDispatcher_SmartStaysOnHTTPForStaticPages(t *testing.T) {
	static := "<html><body>" + strings.Repeat("<p>Long static text content. </p>", 40) + "</body></html>"
	httpEng := &stubEngine{name: "http", result: staticResult(static)}
	chromeEng := &stubEngine{name: "chrome", result: staticResult(static)}
	memory := NewDomainMemory(time.Hour)
	defer memory.Stop()

	d := NewDispatcher(httpEng, chromeEng, memory, true)
	result, err := d.Dispatch(context.Background(), &Request{URL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if result.EngineName != "http" {
		t.Errorf("EngineName = %q, want http", result.EngineName)
	}
	if chromeEng.fetches != 0 {
		t.Error("browser should not run for static pages")
	}
}

func TestDispatcher_MemoryFailureFallsBack(t *testing.T) {
	static := "<html><body>" + strings.Repeat("<p>Long static text content. </p>", 40) + "</body></html>"
	httpEng := &stubEngine{name: "http", result: staticResult(static)}
	chromeEng := &stubEngine{name: "chrome", err: errors.New("browser crashed")}
	memory := NewDomainMemory(time.Hour)
	defer memory.Stop()
	memory.Set("example.com", "chrome")

	d := NewDispatcher(httpEng, chromeEng, memory, true)
	result, err := d.Dispatch(context.Background(), &Request{URL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if result.EngineName != "http" {
		t.Errorf("EngineName = %q, want http after memory failure", result.EngineName)
	}
	if memory.Get("example.com") != "http" {
		t.Error("memory should record the replacement engine")
	}
}
