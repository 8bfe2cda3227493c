// Package api exposes the crawler over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdulrahman305/spider/api/handler"
	"github.com/abdulrahman305/spider/api/middleware"
	"github.com/abdulrahman305/spider/cache"
	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/transform"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always
// work.
func NewRouter(f handler.Fetcher, tr *transform.Transformer, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape a single page.
	protected.POST("/scrape", handler.Scrape(f, tr, cc))

	// Crawl a site.
	protected.POST("/crawl", handler.PostCrawl(cfg, tr))
	protected.GET("/crawl/:id", handler.GetCrawl())

	return r
}
