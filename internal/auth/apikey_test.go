package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKeyShape(t *testing.T) {
	raw, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(raw, "sms_") {
		t.Errorf("expected sms_ prefix, got %q", raw)
	}
	if got, want := len(raw), len("sms_")+64; got != want {
		t.Errorf("len(raw) = %d, want %d", got, want)
	}
}

func TestGenerateAPIKeyUnique(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	b, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if a == b {
		t.Error("expected two independently generated keys to differ")
	}
}

func TestKeyLast4(t *testing.T) {
	if got := KeyLast4("sms_abcdefgh"); got != "efgh" {
		t.Errorf("KeyLast4 = %q, want efgh", got)
	}
	if got := KeyLast4("ab"); got != "ab" {
		t.Errorf("KeyLast4 of short string = %q, want ab", got)
	}
}
