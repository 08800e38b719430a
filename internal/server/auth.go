package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/livetemplate/storefront/internal/config"
)

// Admin API permissions. Publish also covers discarding the draft, since
// both rewrite a record from the other.
const (
	PermRead    = "read"
	PermWrite   = "write"
	PermPublish = "publish"
)

var allPermissions = []string{PermRead, PermWrite, PermPublish}

type permissionsKey struct{}

// keyring maps API keys to the permissions they grant.
type keyring struct {
	header string
	keys   map[string][]string
}

func newKeyring(cfg *config.AuthConfig) keyring {
	keys := cfg.GetAPIKeys()
	if single := cfg.GetAPIKey(); single != "" {
		if keys == nil {
			keys = make(map[string][]string)
		}
		keys[single] = allPermissions
	}
	return keyring{header: cfg.GetHeaderName(), keys: keys}
}

func (k keyring) open() bool { return len(k.keys) == 0 }

// credential extracts the presented key. A bearer prefix is required when
// the header is Authorization.
func (k keyring) credential(r *http.Request) (string, string) {
	token := r.Header.Get(k.header)
	if token == "" {
		return "", "authentication required"
	}
	if k.header == "Authorization" {
		bearer, ok := strings.CutPrefix(token, "Bearer ")
		if !ok || bearer == "" {
			return "", "invalid authorization format, expected Bearer token"
		}
		token = bearer
	}
	return token, ""
}

// lookup compares against every key in constant time.
func (k keyring) lookup(token string) []string {
	var perms []string
	for key, p := range k.keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			perms = p
		}
	}
	return perms
}

// AuthMiddleware resolves the request's API key to its permissions and puts
// them on the context. With no keys configured every request gets all
// permissions.
func AuthMiddleware(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	ring := newKeyring(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ring.open() {
				next.ServeHTTP(w, withPermissions(r, allPermissions))
				return
			}
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token, problem := ring.credential(r)
			if problem != "" {
				writeJSONError(w, http.StatusUnauthorized, problem)
				return
			}
			perms := ring.lookup(token)
			if perms == nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, withPermissions(r, perms))
		})
	}
}

func withPermissions(r *http.Request, perms []string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), permissionsKey{}, perms))
}

// methodPermission is what each admin API method needs at minimum.
var methodPermission = map[string]string{
	http.MethodGet:   PermRead,
	http.MethodHead:  PermRead,
	http.MethodPost:  PermWrite,
	http.MethodPut:   PermWrite,
	http.MethodPatch: PermWrite,
}

// MethodPermissionMiddleware enforces methodPermission. Must run inside
// AuthMiddleware.
func MethodPermissionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			required, ok := methodPermission[r.Method]
			if !ok {
				writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			if !HasPermission(r, required) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions: "+required+" required for "+r.Method)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission guards a single handler with an extra permission.
func RequirePermission(perm string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !HasPermission(r, perm) {
			writeJSONError(w, http.StatusForbidden, "insufficient permissions: "+perm+" required")
			return
		}
		next(w, r)
	}
}

// HasPermission reports whether the authenticated request holds perm.
func HasPermission(r *http.Request, perm string) bool {
	perms, _ := r.Context().Value(permissionsKey{}).([]string)
	return slices.Contains(perms, perm)
}
