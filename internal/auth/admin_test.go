package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testAdminLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdminAuthenticatorRequiresAtLeastOneMethod(t *testing.T) {
	a := NewAdminAuthenticator(testAdminLogger(), "", false, "", "")
	called := false
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if called {
		t.Error("handler should not run when no admin auth method is configured")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAdminAuthenticatorBearerToken(t *testing.T) {
	a := NewAdminAuthenticator(testAdminLogger(), "s3cr3t", false, "", "")
	var gotActor string
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		gotActor = p.Actor
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotActor != "admin:token" {
		t.Errorf("actor = %q, want admin:token", gotActor)
	}
}

func TestAdminAuthenticatorWrongBearerTokenRejected(t *testing.T) {
	a := NewAdminAuthenticator(testAdminLogger(), "s3cr3t", false, "", "")
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAdminAuthenticatorTrustedHeader(t *testing.T) {
	a := NewAdminAuthenticator(testAdminLogger(), "", true, "Cf-Access-Authenticated-User-Email", "")
	var gotActor string
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		gotActor = p.Actor
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Cf-Access-Authenticated-User-Email", "ops@example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotActor != "admin:ops@example.com" {
		t.Errorf("actor = %q, want admin:ops@example.com", gotActor)
	}
}

func TestAdminAuthenticatorSessionCookie(t *testing.T) {
	a := NewAdminAuthenticator(testAdminLogger(), "", false, "", "gateway_admin_session")
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: "gateway_admin_session", Value: "anything"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
