// Package webhook signs and delivers event callbacks to tenant-registered
// URLs. Delivery is fire-and-forget and in-process only: a delivery attempt
// that exhausts its retries is simply dropped (no durable retry queue).
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/taskqueue"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// Dispatcher fans an event out to every active webhook registered for its
// (tenant_id, event_type), signing each delivery independently.
type Dispatcher struct {
	store   *store.Store
	logger  *slog.Logger
	client  *http.Client
	queue   *taskqueue.Queue
	limiter *rate.Limiter
}

// NewDispatcher builds a Dispatcher. concurrency sets a process-wide
// token-bucket rate on delivery starts (concurrency per second, burst of
// concurrency), independent of any per-tenant limit applied elsewhere.
func NewDispatcher(st *store.Store, logger *slog.Logger, timeout time.Duration, queue *taskqueue.Queue, concurrency int) *Dispatcher {
	return &Dispatcher{
		store:   st,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		queue:   queue,
		limiter: rate.NewLimiter(rate.Limit(concurrency), concurrency),
	}
}

// Fire looks up active webhooks for (tenantID, eventType) and submits one
// delivery per match to the task queue. Callers never block on delivery.
func (d *Dispatcher) Fire(ctx context.Context, tenantID uuid.UUID, eventType string, payload map[string]any) {
	hooks, err := d.store.ListWebhooksForEvent(ctx, tenantID, eventType)
	if err != nil {
		d.logger.Error("listing webhooks for event", "error", err, "event_type", eventType)
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload["event"] = eventType
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshaling webhook payload", "error", err, "event_type", eventType)
		return
	}

	for _, hook := range hooks {
		hook := hook
		d.queue.Submit(func(ctx context.Context) {
			d.deliver(ctx, hook, eventType, body)
		})
	}
}

func (d *Dispatcher) deliver(ctx context.Context, hook *store.Webhook, eventType string, body []byte) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	deliveryID := uuid.New()
	signature := sign(hook.SigningSecret, body)

	var lastErr error
	attempts := hook.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(hook.BackoffMS) * time.Millisecond)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", "sha256="+signature)
		req.Header.Set("X-Webhook-Event", eventType)
		req.Header.Set("X-Webhook-Id", deliveryID.String())

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			lastErr = nil
			break
		}
		lastErr = fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	status := "delivered"
	outcome := "success"
	if lastErr != nil {
		status = "failed: " + lastErr.Error()
		outcome = "failure"
		d.logger.Warn("webhook delivery failed", "webhook_id", hook.ID, "event_type", eventType, "error", lastErr)
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, outcome).Inc()

	if err := d.store.RecordWebhookDelivery(ctx, hook.ID, status); err != nil {
		d.logger.Error("recording webhook delivery", "error", err, "webhook_id", hook.ID)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
