package binder

import "net/http"

// Query creates a query parameter binder.
//
// It supports struct tags for custom parameter names:
//   - `query:"name"` - binds to query parameter "name"
//   - `query:"-"` - skips the field
//
// Untagged fields are ignored.
//
//	type CheckoutRequest struct {
//		Regeneration bool `query:"is_regeneration"`
//		Email        string `query:"email"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
