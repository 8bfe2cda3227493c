package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/abdulrahman305/spider/config"
	"github.com/abdulrahman305/spider/models"
)

// Route weights: starting a crawl fans out into many fetches, so it drains
// far more of an identity's budget than a single-page scrape or a status
// poll.
const (
	costDefault = 1
	costCrawl   = 5
)

// clientLimiter is one identity's token bucket.
type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// limiterRegistry maps identities (API key or client IP) to their buckets.
// Stale identities are swept lazily on insert once the map grows past
// sweepThreshold, so an idle server holds no background goroutine.
type limiterRegistry struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
}

const (
	sweepThreshold = 1024
	staleAfter     = 1 * time.Hour
)

func (r *limiterRegistry) get(identity string) *clientLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.clients[identity]
	if !ok {
		if len(r.clients) >= sweepThreshold {
			r.sweepLocked()
		}
		cl = &clientLimiter{bucket: rate.NewLimiter(r.rps, r.burst)}
		r.clients[identity] = cl
	}
	cl.lastSeen = time.Now()
	return cl
}

// sweepLocked drops identities idle longer than staleAfter. Caller holds mu.
func (r *limiterRegistry) sweepLocked() {
	cutoff := time.Now().Add(-staleAfter)
	for id, cl := range r.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, id)
		}
	}
}

// routeCost prices an endpoint in tokens.
func routeCost(c *gin.Context) int {
	if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/crawl" {
		return costCrawl
	}
	return costDefault
}

// RateLimit returns per-identity token-bucket rate limiting middleware.
// Each request spends routeCost tokens; a depleted bucket answers 429 with
// a Retry-After hint for when enough tokens will be available.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	registry := &limiterRegistry{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity, exists := c.Get("api_key")
		if !exists {
			identity = c.ClientIP()
		}

		cl := registry.get(identity.(string))

		cost := routeCost(c)
		reservation := cl.bucket.ReserveN(time.Now(), cost)
		if !reservation.OK() {
			// Cost exceeds the bucket's burst; the request can never pass.
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "request cost exceeds rate limit burst",
				},
			})
			return
		}
		if wait := reservation.Delay(); wait > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
