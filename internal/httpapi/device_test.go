package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("POST", "/internal/android/heartbeat", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	r.RemoteAddr = "10.0.0.1:12345"

	if got := clientIP(r); got != "203.0.113.5" {
		t.Errorf("clientIP = %q, want 203.0.113.5", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("POST", "/internal/android/heartbeat", nil)
	r.RemoteAddr = "10.0.0.1:12345"

	if got := clientIP(r); got != "10.0.0.1:12345" {
		t.Errorf("clientIP = %q, want 10.0.0.1:12345", got)
	}
}
