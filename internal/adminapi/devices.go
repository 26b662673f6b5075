package adminapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
	"github.com/edierwan/getouch-sub000/internal/pairing"
)

type createDeviceRequest struct {
	TenantID     *uuid.UUID `json:"tenant_id"`
	Name         string     `json:"name" validate:"required"`
	IsSharedPool bool       `json:"is_shared_pool"`
}

type createDeviceResponse struct {
	Device      any    `json:"device"`
	DeviceToken string `json:"device_token"`
}

// CreateDevice handles POST /admin/devices.
func (a *API) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.TenantID == nil && !req.IsSharedPool {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindValidation, "a device must belong to a tenant or be shared-pool"))
		return
	}

	token, err := randomDeviceToken()
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "generating device token", err))
		return
	}

	device, err := a.store.CreateDevice(r.Context(), req.TenantID, req.Name, req.IsSharedPool, token)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "creating device", err))
		return
	}

	a.audit.LogFromRequest(r, "device.created", "device", device.ID, nil)
	httpserver.Respond(w, http.StatusCreated, createDeviceResponse{Device: device, DeviceToken: token})
}

// ListDevices handles GET /admin/tenants/:id/devices.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "tenant not found"))
		return
	}
	devices, err := a.store.ListDevicesByTenant(r.Context(), tenantID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing devices", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"devices": devices})
}

type pairCodeRequest struct {
	TTLMinutes int `json:"ttl_minutes"`
}

type pairCodeResponse struct {
	Code           string    `json:"code"`
	RedemptionURL  string    `json:"redemption_url"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// MintPairCode handles POST /admin/devices/:id/pair-code.
func (a *API) MintPairCode(w http.ResponseWriter, r *http.Request, pairingSvc *pairing.Service, publicBaseURL string, minTTL, maxTTL, defaultTTL time.Duration) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "device not found"))
		return
	}

	var req pairCodeRequest
	if r.ContentLength > 0 {
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
	}

	ttl := defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}

	principal, _ := auth.FromContext(r.Context())
	createdBy := "admin"
	if principal != nil {
		createdBy = principal.Actor
	}

	code, expiresAt, err := pairingSvc.MintPairCode(r.Context(), deviceID, createdBy, ttl)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "minting pair code", err))
		return
	}

	a.audit.LogFromRequest(r, "device.pair_code_minted", "device", deviceID, nil)
	httpserver.Respond(w, http.StatusCreated, pairCodeResponse{
		Code:          code,
		RedemptionURL: publicBaseURL + "/pair?code=" + code,
		ExpiresAt:     expiresAt,
	})
}

type rotateTokenResponse struct {
	DeviceToken string `json:"device_token"`
}

// RotateDeviceToken handles POST /admin/devices/:id/rotate-token.
func (a *API) RotateDeviceToken(w http.ResponseWriter, r *http.Request, pairingSvc *pairing.Service) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.Respond(w, a.logger, apierror.New(apierror.KindNotFound, "device not found"))
		return
	}

	token, err := pairingSvc.RotateToken(r.Context(), deviceID)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "rotating device token", err))
		return
	}

	a.audit.LogFromRequest(r, "device.token_rotated", "device", deviceID, nil)
	httpserver.Respond(w, http.StatusOK, rotateTokenResponse{DeviceToken: token})
}

// randomDeviceToken mirrors the 32-byte hex token shape minted by
// pairing.Service.RotateToken, so an admin-created device starts with a
// token in the same format one gets from later rotation.
func randomDeviceToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
