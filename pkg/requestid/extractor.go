package requestid

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// LoggerExtractor returns a ContextExtractor that adds the request id to log records.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if requestID := FromContext(ctx); requestID != "" {
			return logger.RequestID(requestID), true
		}
		return slog.Attr{}, false
	}
}
