package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/lifecoach/pkg/binder"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// classifyBindError maps binder failures to client errors.
func classifyBindError(err error) error {
	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return WithCause(ErrUnsupportedMedia, err)
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath):
		return WithCause(ErrBadRequest, err)
	}
	return err
}

// NewErrorHandler returns an ErrorHandler that logs the failure and renders
// the standard JSON error body. Client errors log at WARN, the rest at ERROR.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		err = classifyBindError(err)

		resp := JSONError(err).(*jsonResponse)
		level := slog.LevelError
		if resp.status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.Error("failed to render error response", logger.Error(renderErr))
		}
	}
}
