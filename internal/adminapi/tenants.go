// Package adminapi implements the operator-facing administrative surface:
// tenant, API key, device, and webhook CRUD; pair-code minting; audit log
// reads; and the health/stats roll-up. Every mutation is written to the
// audit log via internal/audit.
package adminapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/audit"
	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
	"github.com/edierwan/getouch-sub000/internal/store"
)

// API holds the dependencies shared by all admin handlers.
type API struct {
	store            *store.Store
	logger           *slog.Logger
	audit            *audit.Writer
	defaultAPIKeyRPM int
}

func New(st *store.Store, logger *slog.Logger, auditWriter *audit.Writer, defaultAPIKeyRPM int) *API {
	return &API{store: st, logger: logger, audit: auditWriter, defaultAPIKeyRPM: defaultAPIKeyRPM}
}

type createTenantRequest struct {
	Slug string `json:"slug" validate:"required,tenant_slug"`
	Name string `json:"name" validate:"required"`
	Plan string `json:"plan"`
}

// CreateTenant handles POST /admin/tenants.
func (a *API) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Plan == "" {
		req.Plan = "default"
	}

	tenant, err := a.store.CreateTenant(r.Context(), req.Slug, req.Name, req.Plan)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindConflict, "creating tenant", err))
		return
	}

	a.audit.LogFromRequest(r, "tenant.created", "tenant", tenant.ID, nil)
	httpserver.Respond(w, http.StatusCreated, tenant)
}

// ListTenants handles GET /admin/tenants.
func (a *API) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpserver.ParsePageParams(r)
	tenants, err := a.store.ListTenants(r.Context(), limit, offset)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing tenants", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"tenants": tenants, "limit": limit, "offset": offset})
}

// GetTenant handles GET /admin/tenants/:id.
func (a *API) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	tenant, err := a.store.GetTenantByID(r.Context(), id)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindNotFound, "tenant not found", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, tenant)
}

// SuspendTenant handles POST /admin/tenants/:id/suspend.
func (a *API) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	if err := a.store.SuspendTenant(r.Context(), id); err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "suspending tenant", err))
		return
	}
	a.audit.LogFromRequest(r, "tenant.suspended", "tenant", id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}

// ReactivateTenant handles POST /admin/tenants/:id/reactivate.
func (a *API) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	if err := a.store.ReactivateTenant(r.Context(), id); err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "reactivating tenant", err))
		return
	}
	a.audit.LogFromRequest(r, "tenant.reactivated", "tenant", id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}

type createAPIKeyRequest struct {
	TenantID  uuid.UUID `json:"tenant_id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Scopes    []string  `json:"scopes" validate:"required,min=1"`
	RateLimit int       `json:"rate_limit_rpm"`
}

type createAPIKeyResponse struct {
	APIKey *store.APIKey `json:"api_key"`
	RawKey string        `json:"raw_key"`
}

// CreateAPIKey handles POST /admin/api-keys.
func (a *API) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = a.defaultAPIKeyRPM
	}

	raw, err := auth.GenerateAPIKey()
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "generating api key", err))
		return
	}

	key, err := a.store.CreateAPIKey(r.Context(), req.TenantID, req.Name, auth.HashKey(raw), auth.KeyLast4(raw), req.Scopes, req.RateLimit, nil)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "creating api key", err))
		return
	}

	a.audit.LogFromRequest(r, "apikey.created", "api_key", key.ID, nil)
	httpserver.Respond(w, http.StatusCreated, createAPIKeyResponse{APIKey: key, RawKey: raw})
}

// ListAPIKeys handles GET /admin/tenants/:id/api-keys.
func (a *API) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	keys, err := a.store.ListAPIKeysByTenant(r.Context(), tenantID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing api keys", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"api_keys": keys})
}

// RevokeAPIKey handles POST /admin/api-keys/:id/revoke.
func (a *API) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "api key not found"))
		return
	}
	if err := a.store.RevokeAPIKey(r.Context(), id); err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "revoking api key", err))
		return
	}
	a.audit.LogFromRequest(r, "apikey.revoked", "api_key", id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true})
}
