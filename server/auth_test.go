package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator("", testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/resumes/x", nil)
	auth.Middleware(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rr.Code)
	}
}

func TestAuthValidKeySetsRole(t *testing.T) {
	configured := "recruiter:" + hashKey(t, "recruiter-secret") + ";admin:" + hashKey(t, "admin-secret")
	auth := NewAuthenticator(configured, testLogger())

	var gotRole string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/resumes/x", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	auth.Middleware(inner).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if gotRole != "admin" {
		t.Errorf("role = %q, want admin", gotRole)
	}
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	auth := NewAuthenticator("recruiter:"+hashKey(t, "recruiter-secret"), testLogger())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic recruiter-secret"},
		{"unknown key", "Bearer wrong-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/resumes/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			auth.Middleware(okHandler()).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	configured := "recruiter:" + hashKey(t, "recruiter-secret") + ";admin:" + hashKey(t, "admin-secret")
	auth := NewAuthenticator(configured, testLogger())

	protected := auth.Middleware(auth.RequireRole("admin", okHandler()))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/resumes/x", nil)
	req.Header.Set("Authorization", "Bearer recruiter-secret")
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("recruiter on admin route: status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/resumes/x", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d, want 200", rr.Code)
	}
}
