package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoforge/internal/logger"
)

// RequestLogger logs method/path/status/duration for every control-surface
// request, skipping the health check endpoint to avoid log spam from
// readiness probes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.Info("http request", []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", duration),
		})
	}
}

// ErrorLogger logs any handler errors gin accumulated on the context.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, err := range c.Errors {
			logger.Error("request error", []logger.Field{
				logger.String("path", c.Request.URL.Path),
				logger.String("method", c.Request.Method),
				logger.Err("error", err.Err),
			})
		}
	}
}
