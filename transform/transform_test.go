package transform

import (
	"strings"
	"testing"

	"github.com/abdulrahman305/spider/models"
)

func htmlPage(body string) *models.Page {
	return &models.Page{
		URL:         "https://example.com/article",
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
		StatusCode:  200,
	}
}

func TestContent_Markdown(t *testing.T) {
	tr := New()
	page := htmlPage(`<html><body><h1>Title</h1><p>Some <strong>bold</strong> text and a <a href="/next">link</a>.</p></body></html>`)

	out, err := tr.Content(page, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "# Title") {
		t.Errorf("markdown missing heading: %q", out)
	}
	if !strings.Contains(out, "**bold**") {
		t.Errorf("markdown missing emphasis: %q", out)
	}
	if !strings.Contains(out, "https://example.com/next") {
		t.Errorf("relative link should be absolutised: %q", out)
	}
}

func TestContent_MarkdownStripsScripts(t *testing.T) {
	tr := New()
	page := htmlPage(`<html><body><p>Visible</p><script>alert(1)</script></body></html>`)

	out, err := tr.Content(page, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "alert") {
		t.Errorf("script content leaked into markdown: %q", out)
	}
}

func TestContent_Text(t *testing.T) {
	tr := New()
	page := htmlPage(`<html><head><style>p{}</style></head><body><p>Hello</p><p>world</p><script>nope()</script></body></html>`)

	out, err := tr.Content(page, FormatText)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello world" {
		t.Errorf("text = %q, want %q", out, "Hello world")
	}
}

func TestContent_HTMLPassthrough(t *testing.T) {
	tr := New()
	body := `<html><body><p>as-is</p></body></html>`
	out, err := tr.Content(htmlPage(body), FormatHTML)
	if err != nil {
		t.Fatal(err)
	}
	if out != body {
		t.Errorf("html format must pass the body through unchanged")
	}
}

func TestContent_NonHTMLPassthrough(t *testing.T) {
	tr := New()
	page := &models.Page{
		URL:         "https://example.com/data.json",
		ContentType: "application/json",
		Body:        []byte(`{"key":"value"}`),
	}
	out, err := tr.Content(page, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"key":"value"}` {
		t.Errorf("non-HTML bodies must pass through, got %q", out)
	}
}

func TestContent_UnknownFormat(t *testing.T) {
	tr := New()
	if _, err := tr.Content(htmlPage("<p>x</p>"), Format("yaml")); err == nil {
		t.Error("unknown format should error")
	}
}

func TestContent_ReadabilityFallsBackOnShortContent(t *testing.T) {
	tr := New()
	body := `<html><body><p>tiny</p></body></html>`
	out, err := tr.Content(htmlPage(body), FormatReadability)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "tiny") {
		t.Errorf("fallback should keep the original content, got %q", out)
	}
}
