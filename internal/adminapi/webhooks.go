package adminapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
)

type createWebhookRequest struct {
	TenantID   uuid.UUID `json:"tenant_id" validate:"required"`
	EventType  string    `json:"event_type" validate:"required,oneof=sms.sent sms.delivered sms.failed sms.inbound"`
	URL        string    `json:"url" validate:"required,url"`
	MaxRetries int       `json:"max_retries"`
	BackoffMS  int       `json:"backoff_ms"`
}

type createWebhookResponse struct {
	Webhook       any    `json:"webhook"`
	SigningSecret string `json:"signing_secret"`
}

// CreateWebhook handles POST /admin/webhooks.
func (a *API) CreateWebhook(w http.ResponseWriter, r *http.Request, defaultMaxRetries, defaultBackoffMS int) {
	var req createWebhookRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = defaultMaxRetries
	}
	if req.BackoffMS <= 0 {
		req.BackoffMS = defaultBackoffMS
	}

	secret, err := randomWebhookSecret()
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "generating signing secret", err))
		return
	}

	hook, err := a.store.CreateWebhook(r.Context(), req.TenantID, req.EventType, req.URL, secret, req.MaxRetries, req.BackoffMS)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "creating webhook", err))
		return
	}

	a.audit.LogFromRequest(r, "webhook.created", "webhook", hook.ID, nil)
	httpserver.Respond(w, http.StatusCreated, createWebhookResponse{Webhook: hook, SigningSecret: secret})
}

// ListWebhooks handles GET /admin/tenants/:id/webhooks.
func (a *API) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	hooks, err := a.store.ListWebhooksByTenant(r.Context(), tenantID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing webhooks", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

type rotateWebhookSecretResponse struct {
	SigningSecret string `json:"signing_secret"`
}

// RotateWebhookSecret handles POST /admin/webhooks/:id/rotate-secret.
func (a *API) RotateWebhookSecret(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "webhook not found"))
		return
	}

	secret, err := randomWebhookSecret()
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "generating signing secret", err))
		return
	}

	if _, err := a.store.RotateWebhookSecret(r.Context(), id, secret); err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "rotating webhook secret", err))
		return
	}

	a.audit.LogFromRequest(r, "webhook.secret_rotated", "webhook", id, nil)
	httpserver.Respond(w, http.StatusOK, rotateWebhookSecretResponse{SigningSecret: secret})
}

// DeleteWebhook handles DELETE /admin/webhooks/:id.
func (a *API) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "webhook not found"))
		return
	}
	if err := a.store.DeleteWebhook(r.Context(), id); err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "deleting webhook", err))
		return
	}
	a.audit.LogFromRequest(r, "webhook.deleted", "webhook", id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}

func randomWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
