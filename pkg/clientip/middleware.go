package clientip

import "net/http"

// Middleware stores the resolved client IP on the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), res.FromRequest(r))))
	})
}
