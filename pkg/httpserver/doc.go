// Package httpserver runs an http.Handler with configured timeouts and
// graceful shutdown driven by a context.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	return srv.Run(ctx, router)
//
// Run returns once the context is cancelled and in-flight requests have
// finished or the shutdown timeout elapsed. HealthCheckHandler builds the
// liveness and readiness endpoints from named dependency checks.
package httpserver
