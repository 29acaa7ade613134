package middleware

import (
	"net/http"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize int64 = 1 << 20

// multipartOverhead leaves room for form fields and part headers around an
// uploaded image.
const multipartOverhead int64 = 64 << 10

// RequestSize caps request bodies with http.MaxBytesReader. Handlers see a
// *http.MaxBytesError once the cap is crossed.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UploadRequestSize caps bodies carrying an image of at most maxImageBytes.
func UploadRequestSize(maxImageBytes int64) func(http.Handler) http.Handler {
	return RequestSize(maxImageBytes + multipartOverhead)
}
