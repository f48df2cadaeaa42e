package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/ratelimiter"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimiter.Result, error) {
	return ratelimiter.Result{}, ratelimiter.ErrStoreUnavailable
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	byHeader := func(r *http.Request) string { return r.Header.Get("X-Account") }

	call := func(h http.Handler, account string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if account != "" {
			req.Header.Set("X-Account", account)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("throttles and sets headers", func(t *testing.T) {
		t.Parallel()
		b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, byHeader)(ok)

		rec := call(h, "a")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = call(h, "a")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		assert.Equal(t, http.StatusNoContent, call(h, "b").Code)
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		t.Parallel()
		b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, byHeader)(ok)

		for range 3 {
			rec := call(h, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("custom denied handler", func(t *testing.T) {
		t.Parallel()
		b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, byHeader, ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, _ *http.Request, res ratelimiter.Result) {
			assert.False(t, res.Allowed)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))(ok)

		call(h, "a")
		assert.Equal(t, http.StatusServiceUnavailable, call(h, "a").Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		t.Parallel()
		var seen error
		h := ratelimiter.Middleware(failingLimiter{}, byHeader, ratelimiter.WithStoreErrorHandler(func(_ *http.Request, err error) {
			seen = err
		}))(ok)

		assert.Equal(t, http.StatusNoContent, call(h, "a").Code)
		assert.True(t, errors.Is(seen, ratelimiter.ErrStoreUnavailable))
	})
}
