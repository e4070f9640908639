package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog logs each request and reports it to metrics.
func AccessLog(metrics MetricsInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestObserve(route, status, latency.Seconds())

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(ctxRequestID)).
			Msg("http request")
	}
}

// CORS allows the configured origins. A "*" entry allows any origin.
// Preflight requests are answered directly.
func CORS(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "Authorization", headerRequestID}, ", "))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit applies a token bucket per client IP. The IP comes from
// X-Forwarded-For only when the peer is a trusted proxy. Idle limiters
// expire so the set of tracked clients stays bounded.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiters := cache.New(10*time.Minute, time.Minute)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		// Add fails when another request raced us, then Get sees its limiter
		if _, found := limiters.Get(ip); !found {
			_ = limiters.Add(ip, rate.NewLimiter(rate.Limit(rps), burst), cache.DefaultExpiration)
		}
		v, _ := limiters.Get(ip)
		limiter, ok := v.(*rate.Limiter)

		if ok && !limiter.Allow() {
			fail(c, http.StatusTooManyRequests, msgRateLimited)
			return
		}
		c.Next()
	}
}
