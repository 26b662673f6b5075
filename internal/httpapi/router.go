package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/store"
)

// Mount attaches the public tenant API and the device API to r. tenantAuth
// gates the bearer-key routes by scope; deviceAuth gates the HMAC routes.
// internalAuth, if non-nil, gates the push-mode adapter's delivery-receipt
// callback with a static shared secret instead of a per-device credential —
// the server-side adapter isn't a physical device and holds no HMAC token.
func Mount(r chi.Router, tenantAPI *TenantAPI, deviceAPI *DeviceAPI, tenantAuth *auth.TenantAuthenticator, deviceAuth *auth.DeviceAuthenticator, internalAuth *auth.InternalSecretAuthenticator) {
	r.Group(func(r chi.Router) {
		r.Use(tenantAuth.RequireScope(store.ScopeSend))
		r.Post("/send", tenantAPI.Send)
	})
	r.Group(func(r chi.Router) {
		r.Use(tenantAuth.RequireScope(store.ScopeRead))
		r.Get("/messages/{id}", tenantAPI.GetMessage)
		r.Get("/outbound", tenantAPI.ListOutbound)
	})
	r.Group(func(r chi.Router) {
		r.Use(tenantAuth.RequireScope(store.ScopeInbox))
		r.Get("/inbox", tenantAPI.ListInbox)
	})

	r.Route("/internal/android", func(r chi.Router) {
		r.Post("/pair", deviceAPI.Pair)
		r.Post("/redeem-code", deviceAPI.RedeemCode)

		r.Group(func(r chi.Router) {
			r.Use(deviceAuth.Require)
			r.Post("/heartbeat", deviceAPI.Heartbeat)
			r.Post("/pull-outbound", deviceAPI.PullOutbound)
			r.Post("/outbound-ack", deviceAPI.OutboundAck)
			r.Post("/inbound", deviceAPI.Inbound)
			r.Post("/delivery", deviceAPI.Delivery)
		})
	})

	if internalAuth != nil {
		r.Route("/internal/adapter", func(r chi.Router) {
			r.Use(internalAuth.Require)
			r.Post("/delivery", deviceAPI.Delivery)
		})
	}
}
