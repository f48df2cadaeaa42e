// Package binder binds HTTP request data to Go structs.
//
// A binder is a func(r *http.Request, v any) error that fills the struct
// fields it owns and leaves the rest untouched, so several binders can be
// chained over one request type:
//
//	type VerifyRequest struct {
//		AccountID   uuid.UUID `path:"account_id" json:"-"`
//		SessionID   string    `json:"session_id"`
//		ForceActive bool      `json:"force_active"`
//	}
//
//	r.Post("/payments/{account_id}/verify", handler.Wrap(verify,
//		handler.WithBinders[handler.Context, VerifyRequest](
//			binder.Path(chi.URLParam),
//			binder.JSON(),
//		),
//	))
//
// # Available Binders
//
//   - JSON(): strict JSON body decoding with a 1 MB limit
//   - Query(): URL query parameters via `query` tags
//   - Path(extractor): router path parameters via `path` tags
//
// Query and path binders support basic scalar types, pointers for optional
// values, slices (query only, repeated or comma separated) and any type
// implementing encoding.TextUnmarshaler, such as uuid.UUID.
//
// # Errors
//
// Every failure wraps one of the package sentinel errors, so callers can map
// them to HTTP status codes with errors.Is. A binder returns
// ErrBinderNotApplicable when the request carries nothing for it; the handler
// package skips such binders.
package binder
