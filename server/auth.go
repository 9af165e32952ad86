package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const roleContextKey contextKey = "auth_role"

// RoleFromContext returns the authenticated caller's role.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleContextKey).(string)
	return role, ok
}

type apiKey struct {
	role string
	hash []byte
}

// Authenticator checks bearer tokens against bcrypt-hashed API keys.
// Keys are configured as semicolon-separated "role:hash" pairs.
type Authenticator struct {
	keys   []apiKey
	logger *slog.Logger
}

func NewAuthenticator(configured string, logger *slog.Logger) *Authenticator {
	a := &Authenticator{logger: logger}
	for _, pair := range strings.Split(configured, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		role, hash, ok := strings.Cut(pair, ":")
		if !ok || role == "" || hash == "" {
			logger.Warn("skipping malformed API key entry")
			continue
		}
		a.keys = append(a.keys, apiKey{role: role, hash: []byte(hash)})
	}
	return a
}

// Enabled reports whether any key is configured. With no keys the
// middleware passes everything through, which suits local development.
func (a *Authenticator) Enabled() bool {
	return len(a.keys) > 0
}

// Middleware authenticates the bearer token and stores the caller's role
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		for _, key := range a.keys {
			if bcrypt.CompareHashAndPassword(key.hash, []byte(token)) == nil {
				ctx := context.WithValue(r.Context(), roleContextKey, key.role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		a.logger.Warn("rejected request with unknown API key",
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr))
		writeAuthError(w, "invalid API key", http.StatusUnauthorized)
	})
}

// RequireRole gates a handler on the authenticated role. With auth
// disabled everything is permitted.
func (a *Authenticator) RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := RoleFromContext(r.Context())
		if !ok || got != role {
			writeAuthError(w, "insufficient role", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
