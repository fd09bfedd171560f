package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a Gin middleware that logs each request with zap. Health
// checks and stream endpoints log at debug level.
func Logger(log *zap.Logger, quiet ...string) gin.HandlerFunc {
	q := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		q[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("trace_id", GetTraceID(c)),
			zap.String("client_ip", c.ClientIP()),
		}
		if sub := GetSubject(c); sub != "" {
			fields = append(fields, zap.String("subject", sub))
		}
		if q[c.FullPath()] {
			log.Debug("http", fields...)
			return
		}
		log.Info("http", fields...)
	}
}
