package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePageParamsDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	limit, offset := ParsePageParams(r)
	if limit != DefaultPageSize || offset != 0 {
		t.Errorf("got (%d, %d), want (%d, 0)", limit, offset, DefaultPageSize)
	}
}

func TestParsePageParamsCapsLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=9999", nil)
	limit, _ := ParsePageParams(r)
	if limit != MaxPageSize {
		t.Errorf("limit = %d, want %d", limit, MaxPageSize)
	}
}

func TestParsePageParamsIgnoresInvalidValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=-5&offset=-1", nil)
	limit, offset := ParsePageParams(r)
	if limit != DefaultPageSize || offset != 0 {
		t.Errorf("got (%d, %d), want (%d, 0)", limit, offset, DefaultPageSize)
	}
}

func TestParsePageParamsCustom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&offset=20", nil)
	limit, offset := ParsePageParams(r)
	if limit != 10 || offset != 20 {
		t.Errorf("got (%d, %d), want (10, 20)", limit, offset)
	}
}

func TestParseTimeWindowEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	from, to, err := ParseTimeWindow(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if from != nil || to != nil {
		t.Errorf("expected nil from/to, got (%v, %v)", from, to)
	}
}

func TestParseTimeWindowValid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
	from, to, err := ParseTimeWindow(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if from == nil || to == nil {
		t.Fatal("expected both from and to to be set")
	}
	if !from.Before(*to) {
		t.Errorf("expected from (%v) before to (%v)", from, to)
	}
}

func TestParseTimeWindowInvalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=not-a-time", nil)
	if _, _, err := ParseTimeWindow(r); err == nil {
		t.Fatal("expected an error for an invalid from value")
	}
}
