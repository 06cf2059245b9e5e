package middleware

import (
	"github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"
	"github.com/haierkeys/contact-identity-service/pkg/limiter"

	"github.com/gin-gonic/gin"
)

// RateLimiter 按 limiter 的 key 取令牌，取不到时返回 429 业务码
func RateLimiter(l limiter.Face) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket, ok := l.GetBucket(l.Key(c)); ok {
			if bucket.TakeAvailable(1) == 0 {
				app.NewResponse(c).ToResponse(code.ErrorTooManyRequests)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
