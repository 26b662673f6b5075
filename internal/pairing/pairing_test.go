package pairing

import "testing"

func TestHashCode_Deterministic(t *testing.T) {
	hash1, prefix1 := hashCode("same-code")
	hash2, prefix2 := hashCode("same-code")

	if hash1 != hash2 {
		t.Fatalf("expected deterministic hash, got %q vs %q", hash1, hash2)
	}
	if prefix1 != prefix2 {
		t.Fatalf("expected deterministic prefix, got %q vs %q", prefix1, prefix2)
	}
}

func TestHashCode_DiffersAcrossCodes(t *testing.T) {
	hash1, prefix1 := hashCode("code-one")
	hash2, prefix2 := hashCode("code-two")

	if hash1 == hash2 {
		t.Fatal("expected different hashes for different codes")
	}
	if prefix1 == prefix2 {
		t.Fatal("expected different prefixes for different codes")
	}
}

func TestRandomHex_Length(t *testing.T) {
	s, err := randomHex(tokenBytes)
	if err != nil {
		t.Fatalf("randomHex: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected 64 hex chars for %d bytes, got %d", tokenBytes, len(s))
	}
}

func TestRandomPairCode_Length(t *testing.T) {
	s, err := randomPairCode()
	if err != nil {
		t.Fatalf("randomPairCode: %v", err)
	}
	if len(s) != 24 {
		t.Fatalf("expected 24 base64url chars for %d bytes, got %d", codeBytes, len(s))
	}
}

func TestHashCode_PrefixIsLeadingCharsOfCode(t *testing.T) {
	raw := "AbCdEfGhIjKlMnOpQrSt"
	_, prefix := hashCode(raw)
	if prefix != raw[:6] {
		t.Fatalf("prefix = %q, want %q", prefix, raw[:6])
	}
}
