package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/pairing"
)

// PairingConfig carries the pairing-related values the admin router needs
// but that belong to deployment configuration rather than the API struct.
type PairingConfig struct {
	Service       *pairing.Service
	PublicBaseURL string
	MinTTL        time.Duration
	MaxTTL        time.Duration
	DefaultTTL    time.Duration
}

// WebhookConfig carries webhook defaults used when an admin omits them.
type WebhookConfig struct {
	DefaultMaxRetries int
	DefaultBackoffMS  int
}

// Mount attaches the admin routes (tenants, keys, devices, webhooks, audit,
// stats) to r, behind adminAuth.
func Mount(r chi.Router, api *API, adminAuth *auth.AdminAuthenticator, pairingCfg PairingConfig, webhookCfg WebhookConfig) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth.Require)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", api.CreateTenant)
			r.Get("/", api.ListTenants)
			r.Get("/{id}", api.GetTenant)
			r.Post("/{id}/suspend", api.SuspendTenant)
			r.Post("/{id}/reactivate", api.ReactivateTenant)
			r.Get("/{id}/api-keys", api.ListAPIKeys)
			r.Get("/{id}/devices", api.ListDevices)
			r.Get("/{id}/webhooks", api.ListWebhooks)
		})

		r.Route("/api-keys", func(r chi.Router) {
			r.Post("/", api.CreateAPIKey)
			r.Post("/{id}/revoke", api.RevokeAPIKey)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", api.CreateDevice)
			r.Post("/{id}/pair-code", func(w http.ResponseWriter, r *http.Request) {
				api.MintPairCode(w, r, pairingCfg.Service, pairingCfg.PublicBaseURL, pairingCfg.MinTTL, pairingCfg.MaxTTL, pairingCfg.DefaultTTL)
			})
			r.Post("/{id}/rotate-token", func(w http.ResponseWriter, r *http.Request) {
				api.RotateDeviceToken(w, r, pairingCfg.Service)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				api.CreateWebhook(w, r, webhookCfg.DefaultMaxRetries, webhookCfg.DefaultBackoffMS)
			})
			r.Post("/{id}/rotate-secret", api.RotateWebhookSecret)
			r.Delete("/{id}", api.DeleteWebhook)
		})

		r.Get("/outbound", api.ListOutbound)
		r.Get("/inbound", api.ListInbound)
		r.Get("/audit-log", api.ListAuditLog)
		r.Get("/stats", api.Stats)
	})
}

// MountHealth attaches the unauthenticated GET /health liveness endpoint —
// it's consulted by load balancers and uptime checks, not operators.
func MountHealth(r chi.Router, api *API, thresholds HealthThresholds) {
	r.Get("/health", api.Health(thresholds))
}
