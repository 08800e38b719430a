package server

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// WithCompression gzips responses for clients that accept it. Bodies under
// gzhttp's minimum size go out as is, and websocket upgrades bypass the
// wrapper since they must hijack the raw connection.
func WithCompression(next http.Handler) http.Handler {
	compressed := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}
