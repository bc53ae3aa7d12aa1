package trace

import (
	"github.com/gin-gonic/gin"
)

// Middleware 为每个请求注入 trace_id（优先使用 X-Trace-ID，其次 X-Request-ID）
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderName())
		if traceID == "" {
			traceID = c.GetHeader("X-Request-ID")
		}
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), traceID))
		c.Writer.Header().Set(HeaderName(), traceID)

		c.Next()
	}
}
