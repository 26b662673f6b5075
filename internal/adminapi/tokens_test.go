package adminapi

import "testing"

func TestRandomDeviceTokenShape(t *testing.T) {
	tok, err := randomDeviceToken()
	if err != nil {
		t.Fatalf("randomDeviceToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("len(token) = %d, want 64", len(tok))
	}
	other, err := randomDeviceToken()
	if err != nil {
		t.Fatalf("randomDeviceToken: %v", err)
	}
	if tok == other {
		t.Error("expected two independently generated tokens to differ")
	}
}

func TestRandomWebhookSecretShape(t *testing.T) {
	secret, err := randomWebhookSecret()
	if err != nil {
		t.Fatalf("randomWebhookSecret: %v", err)
	}
	if len(secret) != 64 {
		t.Errorf("len(secret) = %d, want 64", len(secret))
	}
}
