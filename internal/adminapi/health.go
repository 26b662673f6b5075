package adminapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
)

// HealthThresholds tunes the derived /health status.
type HealthThresholds struct {
	QueueDepthMax           int
	FailureCountMax         int
	HeartbeatStaleThreshold time.Duration
}

type healthResponse struct {
	Status          string     `json:"status"`
	QueueDepth      int64      `json:"queue_depth"`
	FailureCount24h int64      `json:"failure_count_24h"`
	AnyDeviceOnline bool       `json:"any_device_online"`
	WorkerHealthy   bool       `json:"worker_healthy"`
	WorkerLastSeen  *time.Time `json:"worker_last_seen,omitempty"`
}

// Health handles GET /health. Status is derived from queue depth, recent
// failure count, device liveness, and dispatcher heartbeat freshness.
func (a *API) Health(thresholds HealthThresholds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueDepth, err := a.store.QueueDepth(r.Context())
		if err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "checking queue depth", err))
			return
		}
		failures, err := a.store.FailureCountSince(r.Context(), 24)
		if err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "checking failure count", err))
			return
		}
		anyOnline, err := a.store.AnyDeviceOnline(r.Context())
		if err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "checking device liveness", err))
			return
		}

		worker, err := a.store.GetWorkerHealth(r.Context())
		if err != nil {
			apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "checking worker health", err))
			return
		}
		workerHealthy := worker != nil && time.Since(worker.LastHeartbeat) <= thresholds.HeartbeatStaleThreshold

		healthy := anyOnline && workerHealthy && queueDepth <= int64(thresholds.QueueDepthMax) && failures <= int64(thresholds.FailureCountMax)
		degraded := anyOnline || workerHealthy

		status := "offline"
		switch {
		case healthy:
			status = "online"
		case degraded:
			status = "degraded"
		}

		resp := healthResponse{
			Status:          status,
			QueueDepth:      queueDepth,
			FailureCount24h: failures,
			AnyDeviceOnline: anyOnline,
			WorkerHealthy:   workerHealthy,
		}
		if worker != nil {
			resp.WorkerLastSeen = &worker.LastHeartbeat
		}

		code := http.StatusOK
		if status == "offline" {
			code = http.StatusServiceUnavailable
		}
		httpserver.Respond(w, code, resp)
	}
}

// Stats handles GET /admin/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	limit, _ := httpserver.ParsePageParams(r)
	stats, err := a.store.TenantMessageStats(r.Context(), limit)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "computing tenant stats", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"tenants": stats})
}

// ListOutbound handles GET /admin/outbound, optionally filtered by
// ?tenant_id=.
func (a *API) ListOutbound(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpserver.ParsePageParams(r)
	tenantID, apiErr := optionalTenantID(r)
	if apiErr != nil {
		apierror.Respond(w, a.logger, apiErr)
		return
	}
	from, to, err := httpserver.ParseTimeWindow(r)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindValidation, "parsing time window", err))
		return
	}

	msgs, err := a.store.ListOutboundAllTenants(r.Context(), tenantID, from, to, limit, offset)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing outbound messages", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": msgs, "limit": limit, "offset": offset})
}

// ListInbound handles GET /admin/inbound, optionally filtered by
// ?tenant_id=.
func (a *API) ListInbound(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpserver.ParsePageParams(r)
	tenantID, apiErr := optionalTenantID(r)
	if apiErr != nil {
		apierror.Respond(w, a.logger, apiErr)
		return
	}
	from, to, err := httpserver.ParseTimeWindow(r)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindValidation, "parsing time window", err))
		return
	}

	msgs, err := a.store.ListInboundAllTenants(r.Context(), tenantID, from, to, limit, offset)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing inbound messages", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": msgs, "limit": limit, "offset": offset})
}

func optionalTenantID(r *http.Request) (*uuid.UUID, *apierror.Error) {
	v := r.URL.Query().Get("tenant_id")
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apierror.New(apierror.KindValidation, "invalid tenant_id")
	}
	return &id, nil
}

// ListAuditLog handles GET /admin/audit-log.
func (a *API) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpserver.ParsePageParams(r)

	var tenantID *uuid.UUID
	if v := r.URL.Query().Get("tenant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			apierror.Respond(w, a.logger, apierror.New(apierror.KindValidation, "invalid tenant_id"))
			return
		}
		tenantID = &id
	}

	entries, err := a.store.ListAuditLog(r.Context(), tenantID, limit, offset)
	if err != nil {
		apierror.Respond(w, a.logger, apierror.Wrap(apierror.KindInternal, "listing audit log", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}
