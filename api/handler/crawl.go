package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/crawler"
	"github.com/abdulrahman305/spider/hub"
	"github.com/abdulrahman305/spider/models"
	"github.com/abdulrahman305/spider/transform"
	"github.com/abdulrahman305/spider/webhook"
)

// crawlStore holds all in-flight and completed crawl jobs.
var crawlStore sync.Map

func init() {
	// Expire crawl jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			crawlStore.Range(func(key, value any) bool {
				job := value.(*jobState)
				if job.createdAt < cutoff {
					crawlStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// jobState wraps a CrawlJob with its own lock.
type jobState struct {
	mu        sync.Mutex
	job       models.CrawlJob
	createdAt int64
}

// PostCrawl returns a handler for POST /api/v1/crawl: start a crawl in the
// background and return a pollable job id.
func PostCrawl(cfg *config.Config, tr *transform.Transformer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		if req.MaxPages == 0 {
			req.MaxPages = 100
		}
		if req.MaxDepth == 0 {
			req.MaxDepth = 3
		}
		if req.OutputFormat == "" {
			req.OutputFormat = "markdown"
		}

		jobID := "crawl-" + randomID()
		state := &jobState{
			job:       models.CrawlJob{ID: jobID, Status: "processing", WebhookURL: req.WebhookURL, WebhookSecret: req.WebhookSecret},
			createdAt: time.Now().Unix(),
		}
		crawlStore.Store(jobID, state)

		go runCrawl(cfg, tr, state, req)

		c.JSON(http.StatusOK, models.CrawlResponse{ID: jobID, Status: "processing"})
	}
}

// GetCrawl returns a handler for GET /api/v1/crawl/:id.
func GetCrawl() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		val, ok := crawlStore.Load(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "crawl job not found",
				},
			})
			return
		}

		state := val.(*jobState)
		state.mu.Lock()
		resp := models.CrawlStatusResponse{
			ID:        state.job.ID,
			Status:    state.job.Status,
			Completed: state.job.Completed,
			Results:   append([]*models.PageResult(nil), state.job.Results...),
		}
		state.mu.Unlock()

		c.JSON(http.StatusOK, resp)
	}
}

// runCrawl drives a Website for one API job, transforming each published
// page into the job's result list.
func runCrawl(cfg *config.Config, tr *transform.Transformer, state *jobState, req models.CrawlRequest) {
	crawlCfg := cfg.Crawl
	crawlCfg.Limit = req.MaxPages
	crawlCfg.Depth = req.MaxDepth
	crawlCfg.Subdomains = req.Subdomains
	crawlCfg.RespectRobotsTxt = req.RespectRobots
	crawlCfg.BlacklistURL = req.Blacklist
	crawlCfg.WhitelistURL = req.Whitelist
	if req.DelayMs > 0 {
		crawlCfg.Delay = time.Duration(req.DelayMs) * time.Millisecond
	}

	notifier := webhook.NewNotifier(state.job.WebhookURL, state.job.WebhookSecret)

	site := crawler.NewWithConfig(req.URL, crawlCfg, cfg.Browser)
	rx := site.Subscribe(256)

	done := make(chan models.CrawlResult, 1)
	go func() { done <- site.Crawl(context.Background()) }()

	for {
		page, err := rx.Recv(context.Background())
		if err != nil {
			var lag *hub.LagError
			if errors.As(err, &lag) {
				slog.Warn("crawl job receiver lagged", "job", state.job.ID, "dropped", lag.Dropped)
				continue
			}
			break // hub closed
		}

		content := ""
		if !page.Failed() {
			if converted, convErr := tr.Content(page, transform.Format(req.OutputFormat)); convErr == nil {
				content = converted
			}
		}

		result := &models.PageResult{
			URL:        page.URL,
			StatusCode: page.StatusCode,
			Content:    content,
			Failure:    page.FailureText,
			Links:      len(page.Links),
		}

		state.mu.Lock()
		state.job.Results = append(state.job.Results, result)
		state.job.Completed = len(state.job.Results)
		state.mu.Unlock()

		notifier.Notify(&webhook.Event{
			Type:      "crawl.page",
			JobID:     state.job.ID,
			Timestamp: time.Now().Unix(),
			Data:      result,
		})
	}

	crawlResult := <-done

	state.mu.Lock()
	state.job.Status = crawlResult.Status.String()
	if crawlResult.Status == models.CrawlFailed && crawlResult.Err != nil {
		slog.Warn("crawl job failed", "job", state.job.ID, "error", crawlResult.Err)
	}
	status := state.job.Status
	completed := state.job.Completed
	state.mu.Unlock()

	eventType := "crawl.completed"
	if crawlResult.Status != models.CrawlCompleted {
		eventType = "crawl.failed"
	}
	notifier.Notify(&webhook.Event{
		Type:      eventType,
		JobID:     state.job.ID,
		Timestamp: time.Now().Unix(),
		Data:      gin.H{"status": status, "completed": completed},
	})

	slog.Info("crawl job finished", "id", state.job.ID, "status", status, "pages", completed)
}
