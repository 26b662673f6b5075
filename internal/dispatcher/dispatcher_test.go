package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/store"
)

func TestPostToAdapter_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(adapterResponse{ID: "adapter-123", State: "sent"})
	}))
	defer srv.Close()

	d := &Dispatcher{cfg: Config{AdapterBaseURL: srv.URL, AdapterTimeout: 5 * time.Second}, client: srv.Client()}
	msg := &store.OutboundMessage{ID: uuid.New(), ToNumber: "+15551234567", MessageBody: "hi"}
	dev := &store.Device{ID: uuid.New()}

	id, code, err := d.postToAdapter(context.Background(), msg, dev)
	if err != nil {
		t.Fatalf("expected success, got error %v", err)
	}
	if id != "adapter-123" {
		t.Fatalf("expected adapter id to be returned, got %q", id)
	}
	if code != "" {
		t.Fatalf("expected empty error code on success, got %q", code)
	}
}

func TestPostToAdapter_PermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(adapterResponse{ErrorCode: "INVALID_NUMBER"})
	}))
	defer srv.Close()

	d := &Dispatcher{cfg: Config{AdapterBaseURL: srv.URL, AdapterTimeout: 5 * time.Second}, client: srv.Client()}
	msg := &store.OutboundMessage{ID: uuid.New(), ToNumber: "bad-number", MessageBody: "hi"}
	dev := &store.Device{ID: uuid.New()}

	_, code, err := d.postToAdapter(context.Background(), msg, dev)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if code != "INVALID_NUMBER" {
		t.Fatalf("expected INVALID_NUMBER error code, got %q", code)
	}
	if !store.IsPermanentErrorCode(code) {
		t.Fatalf("expected %q to be a permanent error code", code)
	}
}

func TestPostToAdapter_TransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(adapterResponse{ErrorCode: "TIMEOUT"})
	}))
	defer srv.Close()

	d := &Dispatcher{cfg: Config{AdapterBaseURL: srv.URL, AdapterTimeout: 5 * time.Second}, client: srv.Client()}
	msg := &store.OutboundMessage{ID: uuid.New(), ToNumber: "+15551234567", MessageBody: "hi"}
	dev := &store.Device{ID: uuid.New()}

	_, code, err := d.postToAdapter(context.Background(), msg, dev)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if store.IsPermanentErrorCode(code) {
		t.Fatalf("expected %q to be treated as transient", code)
	}
}
