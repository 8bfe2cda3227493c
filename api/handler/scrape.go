package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdulrahman305/spider/cache"
	"github.com/abdulrahman305/spider/engine"
	"github.com/abdulrahman305/spider/models"
	"github.com/abdulrahman305/spider/transform"
)

// Fetcher is the fetch surface handlers dispatch through.
type Fetcher interface {
	Dispatch(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

// maxScrapeTimeout caps the client-requested timeout.
const maxScrapeTimeout = 120 * time.Second

// Scrape returns a handler for POST /api/v1/scrape: fetch one page through
// the engines and return it transformed.
func Scrape(f Fetcher, tr *transform.Transformer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		key := cache.Key(req.URL, req.OutputFormat)
		if cached, hit := cc.Get(key, req.MaxAgeMs); hit {
			c.JSON(http.StatusOK, cached)
			return
		}

		timeout := time.Duration(req.Timeout) * time.Second
		if timeout > maxScrapeTimeout {
			timeout = maxScrapeTimeout
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := f.Dispatch(ctx, &engine.Request{
			URL:     req.URL,
			Headers: req.Headers,
			Timeout: timeout,
			Stealth: req.Stealth,
		})
		if err != nil {
			status, detail := errorDetail(err)
			c.JSON(status, models.ScrapeResponse{Success: false, Error: detail})
			return
		}

		page := &models.Page{
			URL:         result.FinalURL,
			RequestURL:  req.URL,
			StatusCode:  result.StatusCode,
			Headers:     result.Headers,
			Body:        result.Body,
			ContentType: result.ContentType,
		}

		content, err := tr.Content(page, transform.Format(req.OutputFormat))
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInternal,
					Message: err.Error(),
				},
			})
			return
		}

		resp := &models.ScrapeResponse{
			Success:    true,
			URL:        result.FinalURL,
			StatusCode: result.StatusCode,
			Content:    content,
			Engine:     result.EngineName,
		}
		cc.Set(key, resp)
		c.JSON(http.StatusOK, resp)
	}
}

// errorDetail maps internal errors to an HTTP status and API error body.
func errorDetail(err error) (int, *models.ErrorDetail) {
	if crawlErr, ok := err.(*models.CrawlError); ok {
		status := http.StatusBadGateway
		if crawlErr.Code == models.ErrCodeTimeout {
			status = http.StatusGatewayTimeout
		}
		return status, crawlErr.ToDetail()
	}
	slog.Warn("scrape failed", "error", err)
	return http.StatusBadGateway, &models.ErrorDetail{
		Code:    models.ErrCodeTransport,
		Message: err.Error(),
	}
}

// randomID returns a short hex job id.
func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
