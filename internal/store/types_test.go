package store

import "testing"

func TestAPIKeyHasScope(t *testing.T) {
	k := &APIKey{Scopes: []string{ScopeSend, ScopeRead}}
	if !k.HasScope(ScopeSend) {
		t.Error("expected key to carry sms:send scope")
	}
	if k.HasScope(ScopeInbox) {
		t.Error("expected key not to carry sms:inbox scope")
	}
}

func TestIsPermanentErrorCode(t *testing.T) {
	for _, code := range []string{"INVALID_NUMBER", "BLOCKED", "SIM_ERROR"} {
		if !IsPermanentErrorCode(code) {
			t.Errorf("expected %q to be a permanent error code", code)
		}
	}
	for _, code := range []string{"ADAPTER_UNREACHABLE", "SEND_ERROR", "", "UNKNOWN"} {
		if IsPermanentErrorCode(code) {
			t.Errorf("expected %q not to be a permanent error code", code)
		}
	}
}
