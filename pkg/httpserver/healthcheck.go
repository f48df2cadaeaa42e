package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// HealthCheckHandler serves liveness (no checks, "ALIVE") and readiness
// ("READY", or 503 "NOT_READY" when any check fails). Each check runs with
// the request context bounded by timeout.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks ...HealthCheck) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
