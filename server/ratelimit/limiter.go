// Package ratelimit 为 HTTP 接口提供按 key 的令牌桶限流。
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 速率限制器接口
type Limiter interface {
	// Allow 检查是否允许请求
	Allow(key string) bool

	// Info 获取限制信息
	Info(key string) LimitInfo
}

// LimitInfo 限制信息
type LimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time // 下一个令牌可用的时间
}

// TokenBucketLimiter 按 key 维护 rate.Limiter 的令牌桶限流器
type TokenBucketLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    rate.Limit
	capacity int
	idle     time.Duration // 空闲超过该时长的桶被清理
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter 创建令牌桶限流器, 调用方负责 Stop
func NewTokenBucketLimiter(perMinute, capacity int, idle time.Duration) *TokenBucketLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &TokenBucketLimiter{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(float64(perMinute) / 60),
		capacity: capacity,
		idle:     idle,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// get 取出或创建 key 对应的桶, 调用方持有锁
func (l *TokenBucketLimiter) get(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Allow 检查是否允许请求
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.get(key, now).lim.AllowN(now, 1)
}

// Info 获取限制信息
func (l *TokenBucketLimiter) Info(key string) LimitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tokens := l.get(key, now).lim.TokensAt(now)
	info := LimitInfo{Limit: l.capacity, Remaining: max(int(tokens), 0), ResetAt: now}
	if tokens < 1 {
		wait := (1 - tokens) / float64(l.limit)
		info.ResetAt = now.Add(time.Duration(wait * float64(time.Second)))
	}
	return info
}

// Stop 停止清理 goroutine
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanup 清理空闲的桶
func (l *TokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *TokenBucketLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}
