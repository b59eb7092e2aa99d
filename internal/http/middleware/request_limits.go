package middleware

import (
	"net/http"

	"github.com/tendant/school-crm/internal/httputil"
)

// RequestSizeLimit caps the request body at maxBytes. Bodies that declare
// a larger Content-Length are rejected before the handler runs; the rest
// are cut off by http.MaxBytesReader and reported by httputil.Decode.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
