// Package handler provides type-safe HTTP request handling for JSON APIs.
//
// Handlers are generic functions that receive a bound request struct and
// return a Response:
//
//	func status(ctx handler.Context, req StatusRequest) handler.Response {
//		st, err := svc.PaymentStatus(ctx, req.AccountID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(st)
//	}
//
//	r.Get("/payments/{account_id}/payment-status", handler.Wrap(status,
//		handler.WithBinders[handler.Context, StatusRequest](binder.Path(chi.URLParam)),
//	))
//
// # Responses
//
// JSON bodies always use the envelope {"data", "meta", "error"}. Errors that
// are (or wrap) an HTTPError render with its status code and key; any other
// error renders as 500 internal_server_error so internal details never reach
// the client. Use WithCause to keep the underlying error for logs.
//
// # Errors
//
// Binding failures are mapped to 400 or 415. NewErrorHandler logs every
// failure with the request method and path before rendering it; plug it in
// with WithErrorHandler.
package handler
