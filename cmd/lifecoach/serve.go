package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/lifecoach/handler"
	"github.com/dmitrymomot/lifecoach/modules/payments"
	"github.com/dmitrymomot/lifecoach/pkg/clientip"
	"github.com/dmitrymomot/lifecoach/pkg/httpserver"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
	"github.com/dmitrymomot/lifecoach/pkg/requestid"
	svc "github.com/dmitrymomot/lifecoach/svc/payments"
)

func newServeCommand() *cobra.Command {
	var noSweeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiration sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !noSweeper)
		},
	}
	cmd.Flags().BoolVar(&noSweeper, "no-sweeper", false, "do not run the scheduled expiration sweep in this process")
	return cmd
}

func serve(ctx context.Context, withSweeper bool) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics := svc.NewMetrics(a.registry)
	service, err := a.service(metrics)
	if err != nil {
		return err
	}
	sweeper, err := a.sweeper(metrics)
	if err != nil {
		return err
	}
	limiter, err := a.limiter()
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.NewResolver(a.cfg.TrustedProxyHeaders...).Middleware, middleware.Recoverer)
	r.Get("/health/live", httpserver.HealthCheckHandler(a.log, time.Second))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, 5*time.Second, a.healthChecks()...))
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	r.Mount("/payments", payments.New(service,
		payments.WithSummary(sweeper),
		payments.WithRateLimit(limiter),
		payments.WithLogger(a.log),
	).Handle())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrNotFound).Render(w, r)
	})

	server := httpserver.NewFromConfig(a.cfg.HTTP, httpserver.WithLogger(a.log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, r)
	})
	if withSweeper {
		g.Go(func() error {
			return ignoreCanceled(sweeper.Run(ctx))
		})
	} else {
		a.log.InfoContext(ctx, "expiration sweeper disabled", logger.Component("sweeper"))
	}

	err = g.Wait()
	a.log.InfoContext(context.WithoutCancel(ctx), "shutdown complete", slog.Bool("clean", err == nil))
	return err
}
