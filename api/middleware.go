package api

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jacentio/telemetry-gateway/internal/metrics"
)

// authGate rejects requests whose API key header does not match the
// configured key. An empty configured key rejects every non-exempt request.
func (r *Router) authGate() gin.HandlerFunc {
	secret := []byte(r.opts.APIKey)
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if r.exempt[path] {
			c.Next()
			return
		}

		key := c.GetHeader(r.opts.AuthHeader)
		if len(secret) == 0 || subtle.ConstantTimeCompare([]byte(key), secret) != 1 {
			r.logger.Warn("unauthorized request",
				"path", path,
				"remoteAddr", c.ClientIP(),
				"keyConfigured", len(secret) > 0,
			)
			metrics.IncAuthRejected()
			abortWithError(c, http.StatusUnauthorized, errUnauthorized,
				fmt.Sprintf("missing or invalid %s header", r.opts.AuthHeader))
			return
		}
		c.Next()
	}
}

// recovery turns a handler panic into the usual JSON error body.
func (r *Router) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		r.logger.Error("handler panic",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", recovered,
		)
		abortWithError(c, http.StatusInternalServerError, errUnexpected, fmt.Sprint(recovered))
	})
}

// requestLogger logs and counts every request once it has been served.
func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.ObserveRequest(c.FullPath(), c.Request.Method, status, latency)
		r.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
		)
	}
}

func notFound(c *gin.Context) {
	abortWithError(c, http.StatusNotFound, errNotFound, c.Request.URL.Path)
}

func methodNotAllowed(c *gin.Context) {
	abortWithError(c, http.StatusMethodNotAllowed, errMethodNotAllowed,
		c.Request.Method+" "+c.Request.URL.Path)
}
