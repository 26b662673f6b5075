package auth

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// DeviceAuthenticator verifies the HMAC signature on device-facing endpoints
// (heartbeat, pull-outbound, outbound-ack, inbound, delivery) and attaches a
// device Principal to the request context.
type DeviceAuthenticator struct {
	store  *store.Store
	logger *slog.Logger
	skew   time.Duration
}

func NewDeviceAuthenticator(st *store.Store, logger *slog.Logger, skew time.Duration) *DeviceAuthenticator {
	return &DeviceAuthenticator{store: st, logger: logger, skew: skew}
}

// Require wraps next with HMAC device authentication. The verified body is
// restored onto the request so downstream handlers can still decode it.
func (a *DeviceAuthenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, body, apiErr := a.authenticate(r)
		if apiErr != nil {
			apierror.Respond(w, a.logger, apiErr)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := NewContext(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *DeviceAuthenticator) authenticate(r *http.Request) (*Principal, []byte, *apierror.Error) {
	dr, err := ParseDeviceRequest(r)
	if err != nil {
		telemetry.DeviceAuthFailuresTotal.WithLabelValues("missing_headers").Inc()
		return nil, nil, apierror.New(apierror.KindAuthMissing, err.Error())
	}

	deviceID, err := uuid.Parse(dr.DeviceID)
	if err != nil {
		telemetry.DeviceAuthFailuresTotal.WithLabelValues("bad_device_id").Inc()
		return nil, nil, apierror.New(apierror.KindAuthInvalid, "malformed device id")
	}

	device, err := a.store.GetDeviceByID(r.Context(), deviceID)
	if err != nil {
		telemetry.DeviceAuthFailuresTotal.WithLabelValues("unknown_device").Inc()
		return nil, nil, apierror.Wrap(apierror.KindAuthInvalid, "unknown device", err)
	}
	if !device.IsEnabled {
		telemetry.DeviceAuthFailuresTotal.WithLabelValues("device_disabled").Inc()
		return nil, nil, apierror.New(apierror.KindAuthInvalid, "device disabled")
	}

	if verifyErr := VerifyDeviceSignature(dr, device.DeviceToken, a.skew); verifyErr != nil {
		reason := "bad_signature"
		if verifyErr == ErrDeviceTimestampSkew {
			reason = "clock_skew"
		}
		telemetry.DeviceAuthFailuresTotal.WithLabelValues(reason).Inc()
		return nil, nil, apierror.Wrap(apierror.KindAuthInvalid, "device signature rejected", verifyErr)
	}

	principal := &Principal{
		Actor:    "device:" + device.ID.String(),
		Method:   MethodDevice,
		DeviceID: &device.ID,
	}
	if device.TenantID != nil {
		principal.TenantID = *device.TenantID
	}
	return principal, dr.Body, nil
}
