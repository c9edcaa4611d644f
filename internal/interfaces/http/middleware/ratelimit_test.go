package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsBurst(t *testing.T) {
	l := NewTokenBucketLimiter(1, 3)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("client")
		assert.True(t, ok, "request %d should be within burst", i)
	}
	ok, info := l.Allow("client")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
}

func TestTokenBucketRefills(t *testing.T) {
	l := NewTokenBucketLimiter(10, 1)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	ok, _ := l.Allow("client")
	require.True(t, ok)
	ok, _ = l.Allow("client")
	require.False(t, ok)

	clock = clock.Add(200 * time.Millisecond)
	ok, _ = l.Allow("client")
	assert.True(t, ok)
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("a")
	require.False(t, ok)

	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestTokenBucketCleanup(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	l.Allow("stale")
	clock = clock.Add(time.Hour)
	l.Allow("fresh")
	l.Cleanup(10 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

func TestTokenBucketStartCleanupDropsIdleBuckets(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	l.Allow("stale")

	// Backdate the bucket so the next cleanup tick sees it as idle.
	l.mu.Lock()
	l.buckets["stale"].lastSeen = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	l.StartCleanup(time.Millisecond, stop)

	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.buckets) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	limiter := NewTokenBucketLimiter(1, 2)

	r := gin.New()
	r.Use(RateLimit(limiter, cfg))
	r.GET("/data", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitSkipsHealthEndpoints(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 1)
	r := gin.New()
	r.Use(RateLimit(limiter, DefaultRateLimitConfig()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
