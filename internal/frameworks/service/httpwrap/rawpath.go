// Package httpwrap adapts chain handlers and plain handlers to net/http.
package httpwrap

import "net/http"

// ClearRawPath clears r.URL.RawPath so chi routes on the decoded path.
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}
