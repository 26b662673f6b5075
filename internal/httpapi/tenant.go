// Package httpapi implements the public, tenant-scoped HTTP API (bearer
// key auth) and the device-facing HTTP API (HMAC auth).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/dispatcher"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// TenantAPI serves the bearer-key-authenticated endpoints: sending
// messages and reading outbound/inbound history.
type TenantAPI struct {
	store       *store.Store
	logger      *slog.Logger
	maxAttempts int
	rdb         *redis.Client
}

// NewTenantAPI constructs a TenantAPI. rdb may be nil, in which case newly
// queued messages rely solely on the dispatcher's poll interval.
func NewTenantAPI(st *store.Store, logger *slog.Logger, maxAttempts int, rdb *redis.Client) *TenantAPI {
	return &TenantAPI{store: st, logger: logger, maxAttempts: maxAttempts, rdb: rdb}
}

type sendRequest struct {
	To             string          `json:"to" validate:"required,e164"`
	Message        string          `json:"message" validate:"required,max=1600"`
	SenderDeviceID *uuid.UUID      `json:"sender_device_id"`
	Metadata       json.RawMessage `json:"metadata"`
	IdempotencyKey *string         `json:"idempotency_key"`
}

type sendResponse struct {
	MessageID  string    `json:"message_id"`
	Status     string    `json:"status"`
	To         string    `json:"to"`
	CreatedAt  time.Time `json:"created_at"`
	Idempotent bool      `json:"idempotent,omitempty"`
}

// Send handles POST /send.
func (a *TenantAPI) Send(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated principal"))
		return
	}

	var req sendRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	idemKey := req.IdempotencyKey
	if h := r.Header.Get("Idempotency-Key"); h != "" {
		idemKey = &h
	}

	result, err := a.store.CreateOutbound(r.Context(), principal.TenantID, req.To, req.Message, req.SenderDeviceID, idemKey, a.maxAttempts, req.Metadata)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "creating outbound message", err))
		return
	}

	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	} else {
		telemetry.MessagesQueuedTotal.Inc()
		a.wakeDispatcher(r.Context())
	}

	httpserver.Respond(w, status, sendResponse{
		MessageID:  result.Message.ID.String(),
		Status:     string(result.Message.Status),
		To:         result.Message.ToNumber,
		CreatedAt:  result.Message.CreatedAt,
		Idempotent: result.Idempotent,
	})
}

// wakeDispatcher nudges the dispatcher into an immediate poll cycle. Publish
// failures are logged and otherwise ignored — the dispatcher's own poll
// interval is still the fallback.
func (a *TenantAPI) wakeDispatcher(ctx context.Context) {
	if a.rdb == nil {
		return
	}
	if err := a.rdb.Publish(ctx, dispatcher.WakeChannel, "1").Err(); err != nil {
		a.logger.Warn("publishing dispatcher wake event", "error", err)
	}
}

type messageDetailResponse struct {
	Message  *store.OutboundMessage `json:"message"`
	Timeline []*store.StatusEvent   `json:"timeline"`
}

// GetMessage handles GET /messages/:id.
func (a *TenantAPI) GetMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated principal"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "message not found"))
		return
	}

	msg, err := a.store.GetOutboundByID(r.Context(), principal.TenantID, id)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindNotFound, "message not found", err))
		return
	}

	timeline, err := a.store.ListTimeline(r.Context(), msg.ID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "loading message timeline", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, messageDetailResponse{Message: msg, Timeline: timeline})
}

// ListOutbound handles GET /outbound.
func (a *TenantAPI) ListOutbound(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated principal"))
		return
	}

	limit, offset := httpserver.ParsePageParams(r)
	filter := store.ListOutboundFilter{TenantID: principal.TenantID, Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status := store.MessageStatus(s)
		filter.Status = &status
	}
	from, to, err := httpserver.ParseTimeWindow(r)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindValidation, "parsing time window", err))
		return
	}
	filter.From, filter.To = from, to

	msgs, err := a.store.ListOutbound(r.Context(), filter)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing outbound messages", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": msgs, "limit": limit, "offset": offset})
}

// ListInbox handles GET /inbox.
func (a *TenantAPI) ListInbox(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated principal"))
		return
	}

	limit, offset := httpserver.ParsePageParams(r)
	from, to, err := httpserver.ParseTimeWindow(r)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindValidation, "parsing time window", err))
		return
	}

	msgs, err := a.store.ListInbound(r.Context(), store.ListInboundFilter{
		TenantID: principal.TenantID,
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing inbound messages", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": msgs, "limit": limit, "offset": offset})
}
