package ratelimiter

import (
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the throttling key. An empty key bypasses the limiter.
type KeyFunc func(r *http.Request) string

type middlewareConfig struct {
	denied  func(w http.ResponseWriter, r *http.Request, res Result)
	onError func(r *http.Request, err error)
	now     func() time.Time
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithDeniedHandler renders the rejection. Rate limit headers are already set.
func WithDeniedHandler(fn func(w http.ResponseWriter, r *http.Request, res Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.denied = fn
		}
	}
}

// WithStoreErrorHandler observes store failures. The request proceeds unthrottled.
func WithStoreErrorHandler(fn func(r *http.Request, err error)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onError = fn
		}
	}
}

// Middleware throttles requests per key and sets X-RateLimit-* headers.
func Middleware(l Limiter, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		denied: func(w http.ResponseWriter, _ *http.Request, _ Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		onError: func(*http.Request, error) {},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				cfg.onError(r, err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				if retry := res.RetryAfter(cfg.now()); retry > 0 {
					h.Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				}
				cfg.denied(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
