package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/justapithecus/glean/log"
)

// HSTSValue is set on every response.
const HSTSValue = "max-age=31536000; includeSubDomains; preload"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// hstsMiddleware sets Strict-Transport-Security.
func hstsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", HSTSValue)
		c.Next()
	}
}

// requestIDMiddleware propagates an inbound request id or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// loggerMiddleware logs one entry per request.
func loggerMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]any{
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"request_id":  c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			errs := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				errs[i] = err.Err.Error()
			}
			fields["errors"] = errs
			logger.Error("http request with errors", fields)
			return
		}
		if strings.HasPrefix(path, "/healthz") || path == "/metrics" {
			logger.Debug("http request", fields)
			return
		}
		logger.Info("http request", fields)
	}
}
