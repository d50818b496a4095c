package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wordflowlab/abapagents/server/auth"
)

// KeyFunc 从请求中提取限流 key
type KeyFunc func(*gin.Context) string

// ByClient 已认证时按 API key, 否则按客户端 IP
func ByClient(c *gin.Context) string {
	if id := c.GetString(auth.ContextKeyID); id != "" {
		return "key:" + id
	}
	return "ip:" + c.ClientIP()
}

// Middleware 创建速率限制中间件
func Middleware(limiter Limiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ByClient
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		allowed := limiter.Allow(key)
		info := limiter.Info(key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(math.Ceil(time.Until(info.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "rate_limit_exceeded",
					"message": "Too many requests. Please try again later.",
				},
			})
			return
		}
		c.Next()
	}
}
