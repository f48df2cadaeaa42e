package payments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/lifecoach/handler"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
	svc "github.com/dmitrymomot/lifecoach/svc/payments"
)

var (
	ErrAccountNotFound      = handler.NewHTTPError(http.StatusNotFound, "account_not_found")
	ErrUnknownTier          = handler.NewHTTPError(http.StatusBadRequest, "unknown_tier")
	ErrMissingSessionID     = handler.NewHTTPError(http.StatusBadRequest, "missing_session_id")
	ErrSessionMismatch      = handler.NewHTTPError(http.StatusBadRequest, "session_account_mismatch")
	ErrNoSubscription       = handler.NewHTTPError(http.StatusBadRequest, "no_subscription")
	ErrNotCanceled          = handler.NewHTTPError(http.StatusBadRequest, "subscription_not_canceled")
	ErrInvalidWebhook       = handler.NewHTTPError(http.StatusBadRequest, "invalid_webhook")
	ErrAlreadyEntitled      = handler.NewHTTPError(http.StatusConflict, "already_entitled")
	ErrProcessorUnavailable = handler.NewHTTPError(http.StatusBadGateway, "payment_processor_unavailable")
	ErrRateLimited          = handler.NewHTTPError(http.StatusTooManyRequests, "rate_limited")
)

var errorMap = []struct {
	domain error
	http   handler.HTTPError
}{
	{svc.ErrAccountNotFound, ErrAccountNotFound},
	{svc.ErrUnknownTier, ErrUnknownTier},
	{svc.ErrMissingSessionID, ErrMissingSessionID},
	{svc.ErrSessionMismatch, ErrSessionMismatch},
	{svc.ErrNoSubscription, ErrNoSubscription},
	{svc.ErrNotCanceled, ErrNotCanceled},
	{svc.ErrInvalidWebhook, ErrInvalidWebhook},
	{svc.ErrAlreadyEntitled, ErrAlreadyEntitled},
	{svc.ErrProcessorUnavailable, ErrProcessorUnavailable},
}

// mapError translates service errors into HTTP errors. Unmapped errors,
// including invariant violations, stay opaque 500s.
func mapError(err error) error {
	for _, e := range errorMap {
		if errors.Is(err, e.domain) {
			return handler.WithCause(e.http, err)
		}
	}
	return err
}

func (m *Module) fail(ctx handler.Context, err error) handler.Response {
	err = mapError(err)
	resp := handler.JSONError(err)

	level := slog.LevelError
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	r := ctx.Request()
	m.log.LogAttrs(r.Context(), level, "payments request failed",
		logger.Error(err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.Component("payments_http"),
	)
	return resp
}
