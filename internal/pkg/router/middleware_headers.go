package router

import "net/http"

// middlewareSecureHeaders keeps responses that may carry a grant out of
// shared caches and disables content sniffing.
func middlewareSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
