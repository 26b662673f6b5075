package adminapi

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestOptionalTenantIDEmpty(t *testing.T) {
	r := httptest.NewRequest("GET", "/admin/outbound", nil)
	id, apiErr := optionalTenantID(r)
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if id != nil {
		t.Errorf("expected nil tenant id, got %v", id)
	}
}

func TestOptionalTenantIDValid(t *testing.T) {
	want := uuid.New()
	r := httptest.NewRequest("GET", "/admin/outbound?tenant_id="+want.String(), nil)
	id, apiErr := optionalTenantID(r)
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if id == nil || *id != want {
		t.Errorf("got %v, want %v", id, want)
	}
}

func TestOptionalTenantIDInvalid(t *testing.T) {
	r := httptest.NewRequest("GET", "/admin/outbound?tenant_id=not-a-uuid", nil)
	id, apiErr := optionalTenantID(r)
	if apiErr == nil {
		t.Fatal("expected a validation error")
	}
	if id != nil {
		t.Errorf("expected nil tenant id on error, got %v", id)
	}
	if apiErr.Kind != "validation" {
		t.Errorf("Kind = %v, want validation", apiErr.Kind)
	}
}
