package apierror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/edierwan/getouch-sub000/internal/httpserver"
)

func TestRespondClassifiedError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	w := httptest.NewRecorder()

	Respond(w, logger, New(KindNotFound, "message not found"))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var body httpserver.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Error != string(KindNotFound) {
		t.Errorf("error = %q, want %q", body.Error, KindNotFound)
	}
}

func TestRespondUnclassifiedErrorFallsBackToInternal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	w := httptest.NewRecorder()

	Respond(w, logger, errors.New("some unwrapped failure"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRespondRateLimitedSetsRetryAfterHeader(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	w := httptest.NewRecorder()

	e := New(KindRateLimited, "slow down")
	e.RetryAfter = 30
	Respond(w, logger, e)

	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want %q", got, "30")
	}
}

type testWriter struct{ t *testing.T }

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
