// Package limiter provides token bucket rate limiting keyed by request path.
package limiter

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face 限流器接口
type Face interface {
	Key(c *gin.Context) string
	GetBucket(key string) (*ratelimit.Bucket, bool)
	AddBuckets(rules ...BucketRule) Face
}

// BucketRule 令牌桶规则
type BucketRule struct {
	Key          string        // 路由前缀
	FillInterval time.Duration // 放令牌间隔
	Capacity     int64         // 桶容量
	Quantum      int64         // 每次放入数量
}

// MethodLimiter limits requests by the trailing route segment, so /api/identify and
// /api/user/identify share one bucket.
type MethodLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*ratelimit.Bucket
}

func NewMethodLimiter() *MethodLimiter {
	return &MethodLimiter{buckets: make(map[string]*ratelimit.Bucket)}
}

func (l *MethodLimiter) Key(c *gin.Context) string {
	uri := c.Request.URL.Path
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i:]
	}
	return uri
}

func (l *MethodLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bucket, ok := l.buckets[key]
	return bucket, ok
}

func (l *MethodLimiter) AddBuckets(rules ...BucketRule) Face {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rule := range rules {
		if _, ok := l.buckets[rule.Key]; !ok && rule.Capacity > 0 {
			l.buckets[rule.Key] = ratelimit.NewBucketWithQuantum(rule.FillInterval, rule.Capacity, rule.Quantum)
		}
	}
	return l
}
