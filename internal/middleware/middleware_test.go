package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyMiddleware_ReplaysResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls atomic.Int32
	r := gin.New()
	r.Use(ErrorHandler(), IdempotencyMiddleware(NewInMemIdempotencyStore(time.Hour)))
	r.POST("/v1/orders", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"n": n})
	})

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("k1")
	second := do("k1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, int32(1), calls.Load())

	do("k2")
	do("")
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencyMiddleware_ServerErrorsUnlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls atomic.Int32
	r := gin.New()
	r.Use(IdempotencyMiddleware(NewInMemIdempotencyStore(time.Hour)))
	r.POST("/v1/withdrawals", func(c *gin.Context) {
		calls.Add(1)
		c.JSON(http.StatusBadGateway, gin.H{"code": "PAYOUT_FAILED"})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil)
		req.Header.Set(HeaderIdempotencyKey, "same")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestInMemIdempotencyStore_Processing(t *testing.T) {
	s := NewInMemIdempotencyStore(time.Hour)
	rec, hit, err := s.GetOrLock(t.Context(), "a", "fp")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.False(t, hit)

	rec, hit, _ = s.GetOrLock(t.Context(), "a", "fp")
	assert.True(t, hit)
	assert.True(t, rec.Processing)
	assert.Equal(t, "fp", rec.Fingerprint)

	require.NoError(t, s.Unlock(t.Context(), "a"))
	_, hit, _ = s.GetOrLock(t.Context(), "a", "fp")
	assert.False(t, hit)
}

func TestInMemIdempotencyStore_Cleanup(t *testing.T) {
	s := NewInMemIdempotencyStore(time.Hour)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	_, _, _ = s.GetOrLock(t.Context(), "old", "fp")
	now = now.Add(2 * time.Hour)
	_, _, _ = s.GetOrLock(t.Context(), "new", "fp")

	n, err := s.Cleanup(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// an expired key is free again even before cleanup runs
	now = now.Add(2 * time.Hour)
	_, hit, _ := s.GetOrLock(t.Context(), "new", "other")
	assert.False(t, hit)
}

func TestIdempotencyMiddleware_RejectsReusedKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), IdempotencyMiddleware(NewInMemIdempotencyStore(time.Hour)))
	r.POST("/v1/orders", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	do := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
		req.Header.Set(HeaderIdempotencyKey, "k")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	assert.Equal(t, http.StatusCreated, do(`{"sequence":"0"}`).Code)
	w := do(`{"sequence":"1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_CONFLICT")
}

func TestRequestFingerprint(t *testing.T) {
	a := RequestFingerprint(http.MethodPost, "/v1/orders", []byte("x"))
	assert.Equal(t, a, RequestFingerprint(http.MethodPost, "/v1/orders", []byte("x")))
	assert.NotEqual(t, a, RequestFingerprint(http.MethodPost, "/v1/withdrawals", []byte("x")))
	assert.NotEqual(t, a, RequestFingerprint(http.MethodPut, "/v1/orders", []byte("x")))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), RateLimitMiddleware(NewLimiters(0.001, 2)))
	r.GET("/v1/balances/:identity", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/balances/0x01", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimiters_CleanupEvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiters(10, 5)
	l.now = func() time.Time { return now }

	l.Get("ip:10.0.0.1")
	now = now.Add(20 * time.Minute)
	l.Get("ip:10.0.0.2")
	require.Len(t, l.limiters, 2)

	n, err := l.Cleanup(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, l.limiters, 1)
}

func TestLimiters_CleanupKeepsBucketsStillRefilling(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	// one token every 100s, so a drained bucket of 2 needs 200s to refill
	l := NewLimiters(0.01, 2)
	l.now = func() time.Time { return now }
	lim := l.Get("ip:10.0.0.1")
	require.True(t, lim.AllowN(now, 2))

	now = now.Add(time.Minute)
	n, err := l.Cleanup(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(5 * time.Minute)
	n, err = l.Cleanup(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReadOnlyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), ReadOnlyMiddleware(true))
	r.GET("/v1/sequences/:identity", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/orders/digest", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/withdrawals", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sequences/0x01", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/orders/digest", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "READ_ONLY")
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminMiddleware("secret"))
	r.GET("/v1/admin/audit", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil)
	req.Header.Set(HeaderAdminKey, "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
