// Package requestid attaches correlation identifiers to HTTP requests and
// background runs.
//
// Middleware reuses a valid client supplied X-Request-ID header or generates a
// UUID, stores it in the request context and echoes it in the response. The
// sweeper and webhook processing derive their log correlation from the same
// context value, so a single id follows an operation through every log line:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//
// Background jobs call New to start a fresh correlation scope:
//
//	ctx = requestid.New(ctx)
package requestid
