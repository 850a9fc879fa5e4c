package middleware

import (
	"net/http"
	"time"

	"imvqa/internal"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request at debug level, or at warn level
// for server errors
func RequestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("%s %s -> %d (%s)", c.Request.Method, path, status, time.Since(start))
			return
		}
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, path, status, time.Since(start))
	}
}

// MaxBodySize caps request bodies; reads past the limit fail and multipart
// parsing reports the error
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
