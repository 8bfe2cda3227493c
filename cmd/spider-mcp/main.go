// Command spider-mcp exposes the spider HTTP API as MCP tools over stdio,
// so MCP clients can scrape and crawl through a running spider server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiClient talks to the spider HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAPIClient() *apiClient {
	base := os.Getenv("SPIDER_API_URL")
	if base == "" {
		base = "http://127.0.0.1:8080"
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  os.Getenv("SPIDER_API_KEY"),
		client:  &http.Client{Timeout: 180 * time.Second},
	}
}

func (c *apiClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.do(req)
}

func (c *apiClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("spider API returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func main() {
	client := newAPIClient()

	s := server.NewMCPServer("spider-mcp", "1.0.0")

	scrapeTool := mcp.NewTool("spider_scrape",
		mcp.WithDescription("Fetch a single web page and return its content as markdown, readability HTML, or plain text."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The page URL to fetch.")),
		mcp.WithString("output_format", mcp.Description("markdown (default), readability, text, or html.")),
	)
	s.AddTool(scrapeTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload := map[string]any{"url": url}
		if format := req.GetString("output_format", ""); format != "" {
			payload["output_format"] = format
		}
		body, err := client.post(ctx, "/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	})

	crawlTool := mcp.NewTool("spider_crawl",
		mcp.WithDescription("Start a crawl from a seed URL. Returns a job id to poll with spider_crawl_status."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The seed URL.")),
		mcp.WithNumber("max_pages", mcp.Description("Page limit for the crawl (default 100).")),
		mcp.WithNumber("max_depth", mcp.Description("Link depth limit (default 3).")),
		mcp.WithBoolean("subdomains", mcp.Description("Follow links on subdomains of the seed.")),
	)
	s.AddTool(crawlTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload := map[string]any{"url": url}
		if n := req.GetInt("max_pages", 0); n > 0 {
			payload["max_pages"] = n
		}
		if n := req.GetInt("max_depth", 0); n > 0 {
			payload["max_depth"] = n
		}
		if req.GetBool("subdomains", false) {
			payload["subdomains"] = true
		}
		body, err := client.post(ctx, "/api/v1/crawl", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	})

	statusTool := mcp.NewTool("spider_crawl_status",
		mcp.WithDescription("Poll a crawl job for progress and collected pages."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The job id returned by spider_crawl.")),
	)
	s.AddTool(statusTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		body, err := client.get(ctx, "/api/v1/crawl/"+id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintln(os.Stderr, "spider-mcp:", err)
		os.Exit(1)
	}
}
