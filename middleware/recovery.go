package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a panicking dashboard handler into a 500 carrying the trace
// ID, so the operator can find the stack in the agent log. The agent's own
// goroutines are unaffected. When the handler had already started the
// response, the connection is just aborted.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			traceID := GetTraceID(c)
			log.Error("dashboard handler panicked",
				zap.Any("panic", r),
				zap.String("trace_id", traceID),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("subject", GetSubject(c)),
				zap.Bool("response_started", c.Writer.Written()),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "dashboard request failed, see agent log",
				"trace_id": traceID,
			})
		}()
		c.Next()
	}
}
