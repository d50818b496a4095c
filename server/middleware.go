package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/telemetry"
)

// requestIDMiddleware adds a unique request ID to each request
// 并写入请求 ctx 的日志字段, 工作流内的日志都会带上 request_id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithFields(c.Request.Context(), map[string]interface{}{"request_id": requestID}))
		c.Next()
	}
}

// loggingMiddleware logs one structured record per request
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if traceID := telemetry.TraceID(c.Request.Context()); traceID != "" {
			fields["trace_id"] = traceID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "http request", fields)
		case status >= 400:
			logger.Warn(ctx, "http request", fields)
		default:
			logger.Info(ctx, "http request", fields)
		}
	}
}
