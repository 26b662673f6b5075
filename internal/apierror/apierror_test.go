package apierror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindAuthMissing, http.StatusUnauthorized},
		{KindAuthInvalid, http.StatusUnauthorized},
		{KindAuthScope, http.StatusForbidden},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		e := New(c.kind, "boom")
		if got := e.Status(); got != c.want {
			t.Errorf("Kind %s: Status() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	e := Wrap(KindInternal, "querying store", underlying)

	if !errors.Is(e, underlying) {
		t.Error("expected errors.Is to find the wrapped underlying error")
	}
	if got, want := e.Error(), "querying store: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewHasNoUnderlyingError(t *testing.T) {
	e := New(KindValidation, "bad input")
	if e.Err != nil {
		t.Errorf("expected nil Err, got %v", e.Err)
	}
	if got, want := e.Error(), "bad input"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
