// Package logger provides a context-aware wrapper around Go's slog package
// with functional options and attribute helpers.
//
// New creates a *slog.Logger configured by Option functions. The handler is
// wrapped with LogHandlerDecorator, which runs registered ContextExtractor
// callbacks for every record, so request-scoped values such as the request id
// are attached without threading them through every call.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "lifecoach"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "subscription canceled",
//		logger.AccountID(acc.ID),
//		logger.SubscriptionRef(acc.SubscriptionRef),
//	)
//
// # Attributes
//
// Helpers in attr.go keep key names consistent across the payments code:
// account_id, session_id, subscription_ref, event_type, event_id, tier and
// status. Helpers taking optional values return an empty Attr for zero input,
// which slog drops, so callers never need a nil check:
//
//	log.Info("payment verified", logger.Error(err))
package logger
