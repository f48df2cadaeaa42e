// Package clientip resolves the caller address behind the load balancer and
// carries it on the request context for logging and throttling keys.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// DefaultHeaders are the proxy headers trusted when no list is configured,
// in priority order. X-Forwarded-For is read left to right.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// Resolver extracts the client IP from an HTTP request.
type Resolver struct {
	headers []string
}

// NewResolver trusts the given headers in order, or DefaultHeaders when called
// without arguments. NewResolver("") trusts no header and reads RemoteAddr only.
func NewResolver(headers ...string) *Resolver {
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	trusted := make([]string, 0, len(headers))
	for _, h := range headers {
		if h = strings.TrimSpace(h); h != "" {
			trusted = append(trusted, http.CanonicalHeaderKey(h))
		}
	}
	return &Resolver{headers: trusted}
}

// FromRequest returns the normalized client IP, or "" if none is valid.
func (res *Resolver) FromRequest(r *http.Request) string {
	for _, h := range res.headers {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		for part := range strings.SplitSeq(v, ",") {
			if ip := normalize(part); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalize(r.RemoteAddr)
	}
	return normalize(host)
}

func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
