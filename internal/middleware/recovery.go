package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryWithLogger 创建带日志器的 Recovery 中间件
func RecoveryWithLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			var errorMsg string
			fields := []zap.Field{
				zap.String("traceId", GetTraceIDFromGin(c)),
				zap.String("router", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("query", c.Request.URL.RawQuery),
				zap.String("ip", c.ClientIP()),
				zap.String("user-agent", c.Request.UserAgent()),
				zap.String("stack", string(debug.Stack())),
			}
			switch v := rec.(type) {
			case error:
				errorMsg = v.Error()
				logger.Error("Recovered from panic", append(fields, zap.Error(v))...)
			case string:
				errorMsg = v
				logger.Error("Recovered from panic", append(fields, zap.String("panic_value", v))...)
			default:
				logger.Error("Recovered from unknown panic", append(fields, zap.String("panic_value", fmt.Sprintf("%v", v)))...)
			}

			app.NewResponse(c).ToResponse(code.ErrorServerInternal.WithDetails(errorMsg))
			c.Abort()
		}()

		c.Next()
	}
}
