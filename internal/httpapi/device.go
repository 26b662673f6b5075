package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
	"github.com/edierwan/getouch-sub000/internal/pairing"
	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/webhook"
)

// DeviceAPI serves the device endpoints: pairing and code redemption
// (unauthenticated), plus the HMAC-authenticated heartbeat, outbound
// pull/ack, inbound ingestion, and delivery receipts.
type DeviceAPI struct {
	store            *store.Store
	logger           *slog.Logger
	pairing          *pairing.Service
	webhooks         *webhook.Dispatcher
	pullBatchSize    int
	pollIntervalHint int
	defaultTenant    string
}

func NewDeviceAPI(st *store.Store, logger *slog.Logger, pairingSvc *pairing.Service, webhooks *webhook.Dispatcher, pullBatchSize, pollIntervalHint int, defaultTenant string) *DeviceAPI {
	return &DeviceAPI{
		store:            st,
		logger:           logger,
		pairing:          pairingSvc,
		webhooks:         webhooks,
		pullBatchSize:    pullBatchSize,
		pollIntervalHint: pollIntervalHint,
		defaultTenant:    defaultTenant,
	}
}

type pairResponse struct {
	Device             *store.Device `json:"device"`
	PollIntervalSeconds int          `json:"poll_interval_seconds"`
	ServerTime          time.Time    `json:"server_time"`
}

type redeemCodeRequest struct {
	Code       string          `json:"code" validate:"required"`
	DeviceInfo json.RawMessage `json:"device_info"`
}

// RedeemCode handles POST /internal/android/redeem-code.
func (a *DeviceAPI) RedeemCode(w http.ResponseWriter, r *http.Request) {
	var req redeemCodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.pairing.RedeemCode(r.Context(), req.Code, clientIP(r), req.DeviceInfo)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthInvalid, "invalid or expired pair code"))
		return
	}

	httpserver.Respond(w, http.StatusOK, pairResponse{Device: device, PollIntervalSeconds: a.pollIntervalHint, ServerTime: time.Now()})
}

type pairByTokenRequest struct {
	DeviceToken string          `json:"device_token" validate:"required"`
	DeviceInfo  json.RawMessage `json:"device_info"`
}

// Pair handles POST /internal/android/pair.
func (a *DeviceAPI) Pair(w http.ResponseWriter, r *http.Request) {
	var req pairByTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.pairing.PairByToken(r.Context(), req.DeviceToken, req.DeviceInfo)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthInvalid, "invalid device token"))
		return
	}

	httpserver.Respond(w, http.StatusOK, pairResponse{Device: device, PollIntervalSeconds: a.pollIntervalHint, ServerTime: time.Now()})
}

type heartbeatRequest struct {
	Metadata json.RawMessage `json:"metadata"`
}

// Heartbeat handles POST /internal/android/heartbeat.
func (a *DeviceAPI) Heartbeat(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.DeviceID == nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated device"))
		return
	}

	var req heartbeatRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.store.Heartbeat(r.Context(), *principal.DeviceID, req.Metadata)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "recording heartbeat", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, device)
}

type pullItem struct {
	MessageID string `json:"message_id"`
	ToNumber  string `json:"to_number"`
	Body      string `json:"body"`
	SendRef   string `json:"send_ref"`
}

// PullOutbound handles POST /internal/android/pull-outbound.
func (a *DeviceAPI) PullOutbound(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.DeviceID == nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated device"))
		return
	}

	device, err := a.store.GetDeviceByID(r.Context(), *principal.DeviceID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindNotFound, "device not found", err))
		return
	}

	msgs, err := a.store.LeaseForDevicePull(r.Context(), device.ID, device.TenantID, device.IsSharedPool, a.pullBatchSize)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "leasing outbound messages", err))
		return
	}

	items := make([]pullItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, pullItem{MessageID: m.ID.String(), ToNumber: m.ToNumber, Body: m.MessageBody, SendRef: m.ID.String()})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": items})
}

type outboundAckRequest struct {
	MessageID    uuid.UUID `json:"message_id" validate:"required"`
	Status       string    `json:"status" validate:"required,oneof=sent failed"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	ExternalRef  string    `json:"external_ref"`
}

// OutboundAck handles POST /internal/android/outbound-ack.
func (a *DeviceAPI) OutboundAck(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.DeviceID == nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated device"))
		return
	}

	var req outboundAckRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	msg, err := a.store.GetOutboundByIDUnscoped(r.Context(), req.MessageID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindNotFound, "message not found", err))
		return
	}

	switch req.Status {
	case "sent":
		if _, err := a.store.MarkSent(r.Context(), msg.ID, req.ExternalRef, *principal.DeviceID); err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "marking message sent", err))
			return
		}
		a.webhooks.Fire(r.Context(), msg.TenantID, store.EventSMSSent, map[string]any{
			"message_id": msg.ID.String(),
			"to":         msg.ToNumber,
			"device_id":  principal.DeviceID.String(),
		})
	case "failed":
		permanent := store.IsPermanentErrorCode(req.ErrorCode)
		if _, err := a.store.MarkFailed(r.Context(), msg.ID, req.ErrorMessage, req.ErrorCode, permanent); err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "marking message failed", err))
			return
		}
		if permanent {
			a.webhooks.Fire(r.Context(), msg.TenantID, store.EventSMSFailed, map[string]any{
				"message_id": msg.ID.String(),
				"to":         msg.ToNumber,
				"error_code": req.ErrorCode,
			})
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}

type inboundRequest struct {
	FromNumber string          `json:"from_number" validate:"required"`
	ToNumber   string          `json:"to_number"`
	Body       string          `json:"body" validate:"required"`
	ExternalID string          `json:"external_id"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Inbound handles POST /internal/android/inbound.
func (a *DeviceAPI) Inbound(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.DeviceID == nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "no authenticated device"))
		return
	}

	var req inboundRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tenantID := principal.TenantID
	if tenantID == (uuid.UUID{}) {
		tenant, err := a.store.GetTenantBySlug(r.Context(), a.defaultTenant)
		if err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "resolving default tenant", err))
			return
		}
		tenantID = tenant.ID
	}

	var externalID *string
	if req.ExternalID != "" {
		externalID = &req.ExternalID
	}
	var toNumber *string
	if req.ToNumber != "" {
		toNumber = &req.ToNumber
	}

	result, err := a.store.CreateInbound(r.Context(), tenantID, principal.DeviceID, req.FromNumber, toNumber, req.Body, externalID, req.Metadata)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "ingesting inbound message", err))
		return
	}

	if !result.Idempotent {
		a.webhooks.Fire(r.Context(), tenantID, store.EventSMSInbound, map[string]any{
			"inbound_id":  result.Message.ID.String(),
			"from_number": result.Message.FromNumber,
			"body":        result.Message.MessageBody,
		})
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"inbound_id": result.Message.ID.String(), "idempotent": result.Idempotent})
}

type deliveryRequest struct {
	MessageID   uuid.UUID `json:"message_id" validate:"required"`
	Status      string    `json:"status" validate:"required,oneof=delivered"`
	ExternalRef string    `json:"external_ref"`
}

// Delivery handles POST /internal/android/delivery.
func (a *DeviceAPI) Delivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	msg, err := a.store.MarkDelivered(r.Context(), req.MessageID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "marking message delivered", err))
		return
	}

	a.webhooks.Fire(r.Context(), msg.TenantID, store.EventSMSDelivered, map[string]any{
		"message_id":   msg.ID.String(),
		"external_ref": req.ExternalRef,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
