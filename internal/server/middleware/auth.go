package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader carries the caller's key on gated routes.
const APIKeyHeader = "X-API-Key"

// APIKey returns middleware that admits a request only when its X-API-Key
// header exactly equals one of the allowed keys. Allow-list entries are
// trimmed and blanks dropped; the header value is compared as sent. An empty
// allow-list rejects every request.
func APIKey(allowed []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(allowed))
	for _, k := range allowed {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !keyAllowed(keys, r.Header.Get(APIKeyHeader)) {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyAllowed compares key against every entry so the time taken does not
// depend on which entry matched.
func keyAllowed(keys [][]byte, key string) bool {
	if key == "" {
		return false
	}
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), k)
	}
	return match == 1
}

// writeUnauthorized sends a 401 response with a JSON body.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"message":"Unauthorized"}`))
}
