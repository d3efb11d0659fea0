// Package middleware holds the HTTP middleware of the import API: API-key
// and user scoping, request logging and proxy-aware client addresses.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/michalhajok/trackerB-sub000/internal/config"
	"github.com/michalhajok/trackerB-sub000/internal/logging"
)

// UserIDHeader carries the id of the user the request acts for. Identity is
// established upstream; this service only scopes jobs by it.
const UserIDHeader = "X-User-ID"

const apiKeyHeader = "X-API-Key"

// maxUserIDLen matches the user_id column.
const maxUserIDLen = 128

type userIDKey struct{}

// authFailure is a rejection the auth middleware can answer with.
type authFailure struct {
	status  int
	code    string
	message string
}

var (
	errMissingKey  = authFailure{http.StatusUnauthorized, "AUTH_MISSING_KEY", "missing API key"}
	errInvalidKey  = authFailure{http.StatusForbidden, "AUTH_INVALID_KEY", "invalid API key"}
	errMissingUser = authFailure{http.StatusUnauthorized, "AUTH_MISSING_USER", "missing user id"}
)

func reject(w http.ResponseWriter, r *http.Request, f authFailure) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		"code", f.code,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": f.message, "code": f.code})
}

// APIKeyAuth checks X-API-Key against the configured keys. With
// RequireAPIKey off every request passes; with it on and no keys configured
// every request is refused.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, []byte(k))
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(apiKeyHeader)
			switch {
			case presented == "":
				reject(w, r, errMissingKey)
			case !keyMatches([]byte(presented), keys):
				reject(w, r, errInvalidKey)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// keyMatches compares against every key so timing does not reveal which
// one matched.
func keyMatches(presented []byte, keys [][]byte) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(presented, k)
	}
	return match == 1
}

// RequireUser rejects requests without a usable X-User-ID header and stores
// the id in the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" || len(userID) > maxUserIDLen {
			reject(w, r, errMissingUser)
			return
		}
		noteUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the user id stored by RequireUser, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
