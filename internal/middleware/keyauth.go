package middleware

import (
	"crypto/subtle"
	"net/http"
)

// keyHeader carries the pre-shared extension key on bridge requests,
// mirroring the header the backend expects.
const keyHeader = "X-Extension-Key"

// KeyAuth rejects bridge requests that do not carry the pre-shared
// extension key. The health endpoint is excluded so monitoring can
// probe the bridge without credentials.
func KeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/bridge/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(keyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "invalid extension key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
