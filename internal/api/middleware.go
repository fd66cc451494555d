// internal/api/middleware.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware 为每个请求分配ID，响应体和日志用它关联
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}

// rateLimiter 简单令牌桶，按客户端IP限制生成类请求
type rateLimiter struct {
	mutex    sync.Mutex
	buckets  map[string]*tokenBucket
	capacity int
	interval time.Duration
}

type tokenBucket struct {
	tokens   int
	lastFill time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		buckets:  make(map[string]*tokenBucket),
		capacity: capacity,
		interval: interval,
	}
}

// allow 尝试消耗一个令牌
func (rl *rateLimiter) allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: rl.capacity, lastFill: time.Now()}
		rl.buckets[key] = bucket
	}

	// 按经过的时间间隔补充令牌
	elapsed := time.Since(bucket.lastFill)
	refill := int(elapsed / rl.interval)
	if refill > 0 {
		bucket.tokens += refill
		if bucket.tokens > rl.capacity {
			bucket.tokens = rl.capacity
		}
		bucket.lastFill = bucket.lastFill.Add(time.Duration(refill) * rl.interval)
	}

	if bucket.tokens <= 0 {
		return false
	}

	bucket.tokens--
	return true
}

// generationRateLimitMiddleware 限制生成类接口的调用频率
// 外部生成按量计费，限流保护的是调用方自己的配额
func generationRateLimitMiddleware(limiter *rateLimiter) gin.HandlerFunc {
	helper := NewResponseHelper()

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			helper.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "生成请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
