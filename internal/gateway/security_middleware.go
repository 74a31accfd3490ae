package gateway

import (
	"net/http"
	"strings"
)

// securityHeadersMiddleware sets the standard hardening headers. Uploaded
// fault images are served from this process, so nosniff and a restrictive
// frame policy matter even though the API itself only speaks JSON.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// API responses carry fleet and incident data; keep them out of
		// shared caches. Uploaded images stay cacheable.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

// maxBodyMiddleware caps request body size. The JSON endpoints need far less
// than the upload limit, but one cap keeps multipart uploads working without
// a per-route carve-out.
func maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
