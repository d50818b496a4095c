package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟
type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestLimiter(t *testing.T, perMinute, capacity int) (*TokenBucketLimiter, *fakeClock) {
	t.Helper()
	l := NewTokenBucketLimiter(perMinute, capacity, time.Minute)
	t.Cleanup(l.Stop)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l.now = clock.Now
	return l, clock
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	// 其他 key 互不影响
	assert.True(t, l.Allow("b"))

	info := l.Info("a")
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, clock.t.Add(time.Second), info.ResetAt)

	clock.t = clock.t.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// 补充不超过容量
	clock.t = clock.t.Add(time.Hour)
	assert.Equal(t, 2, l.Info("a").Remaining)
}

func TestTokenBucket_EvictIdle(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 1)
	l.Allow("a")
	clock.t = clock.t.Add(2 * time.Minute)
	l.evictIdle()
	assert.Empty(t, l.buckets)
}

func TestTokenBucket_ResetAtTracksPartialRefill(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 1)
	require.True(t, l.Allow("a"))

	clock.t = clock.t.Add(400 * time.Millisecond)
	info := l.Info("a")
	assert.Equal(t, 0, info.Remaining)
	assert.WithinDuration(t, clock.t.Add(600*time.Millisecond), info.ResetAt, time.Millisecond)
	assert.False(t, l.Allow("a"))

	clock.t = clock.t.Add(600 * time.Millisecond)
	info = l.Info("a")
	assert.Equal(t, 1, info.Remaining)
	assert.Equal(t, clock.t, info.ResetAt)
}

func TestTokenBucket_EvictKeepsActiveKeys(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 1)
	l.Allow("idle")
	clock.t = clock.t.Add(90 * time.Second)
	l.Allow("active")
	l.evictIdle()

	require.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "active")
}

func TestTokenBucket_StopIsIdempotent(t *testing.T) {
	l := NewTokenBucketLimiter(0, 0, 0)
	l.Stop()
	l.Stop()
	assert.Equal(t, 1, l.capacity)
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, 1, 1)
	r := gin.New()
	r.Use(Middleware(l, nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}
