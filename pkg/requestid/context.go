package requestid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithContext stores requestID in ctx.
func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// New stores a freshly generated id in ctx.
func New(ctx context.Context) context.Context {
	return WithContext(ctx, uuid.NewString())
}

// FromContext returns the request id or an empty string.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(contextKey{}).(string)
	return requestID
}
