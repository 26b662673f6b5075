// Package dispatcher runs the single in-process worker loop that leases
// queued outbound messages, hands them to a device (push mode) or waits for
// a device to pull them (pull mode), and reaps stale in-flight leases.
// Horizontal scale comes from PostgreSQL's SELECT ... FOR UPDATE SKIP
// LOCKED, not from in-process clustering.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
	"github.com/edierwan/getouch-sub000/internal/webhook"
)

// WakeChannel is the Redis pub/sub channel a newly queued message is
// published to, letting the dispatcher start a cycle immediately instead of
// waiting out the rest of its poll interval.
const WakeChannel = "getouch:outbound:queued"

// Config tunes the dispatcher loop.
type Config struct {
	PollInterval             time.Duration
	BatchSize                int
	StaleProcessingThreshold time.Duration
	AdapterBaseURL           string
	AdapterTimeout           time.Duration
	PushModeEnabled          bool
}

// Dispatcher owns the lease/send/retry loop.
type Dispatcher struct {
	store    *store.Store
	logger   *slog.Logger
	webhooks *webhook.Dispatcher
	rdb      *redis.Client
	cfg      Config
	client   *http.Client
	running  atomic.Bool
}

// New creates a Dispatcher. rdb may be nil, in which case the dispatcher
// falls back to polling on PollInterval alone with no wake-up.
func New(st *store.Store, logger *slog.Logger, webhooks *webhook.Dispatcher, rdb *redis.Client, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:    st,
		logger:   logger,
		webhooks: webhooks,
		rdb:      rdb,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.AdapterTimeout},
	}
}

// Run ticks every PollInterval until ctx is cancelled, waking early whenever
// a message is published on WakeChannel. A tick that overlaps with a
// still-running cycle is skipped rather than queued.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "poll_interval", d.cfg.PollInterval, "batch_size", d.cfg.BatchSize, "push_mode", d.cfg.PushModeEnabled)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var wakeCh <-chan *redis.Message
	if d.rdb != nil {
		pubsub := d.rdb.Subscribe(ctx, WakeChannel)
		defer pubsub.Close()
		wakeCh = pubsub.Channel()
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		case <-wakeCh:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		telemetry.DispatchReentrancySkippedTotal.Inc()
		return
	}
	defer d.running.Store(false)

	start := time.Now()
	succeeded := d.cycle(ctx)
	telemetry.DispatchCycleDuration.Observe(time.Since(start).Seconds())

	if err := d.store.RecordHeartbeat(ctx, "online", succeeded); err != nil {
		d.logger.Error("recording dispatcher heartbeat", "error", err)
	}
}

// cycle runs one lease-and-send pass plus the stale-processing reaper,
// returning the number of messages that reached a terminal success.
func (d *Dispatcher) cycle(ctx context.Context) int64 {
	if n, err := d.store.RequeueStaleProcessing(ctx, d.cfg.StaleProcessingThreshold); err != nil {
		d.logger.Error("reaping stale processing messages", "error", err)
	} else if n > 0 {
		d.logger.Info("requeued stale processing messages", "count", n)
	}

	if !d.cfg.PushModeEnabled {
		return 0
	}

	msgs, err := d.store.LeaseQueuedMessages(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("leasing queued messages", "error", err)
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}

	var succeeded int64
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(len(msgs))
	for _, msg := range msgs {
		msg := msg
		go func() {
			defer wg.Done()
			if d.sendOne(ctx, msg) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return succeeded
}

func (d *Dispatcher) sendOne(ctx context.Context, msg *store.OutboundMessage) bool {
	dev, err := d.store.PickDevice(ctx, msg.TenantID, msg.PreferredDeviceID)
	if err != nil {
		d.logger.Error("picking device", "error", err, "message_id", msg.ID)
		telemetry.MessagesDispatchedTotal.WithLabelValues("error").Inc()
		return false
	}
	if dev == nil {
		if _, err := d.store.MarkFailed(ctx, msg.ID, "no online device available", "NO_DEVICE", false); err != nil {
			d.logger.Error("marking message failed (no device)", "error", err, "message_id", msg.ID)
		}
		telemetry.MessagesDispatchedTotal.WithLabelValues("no_device").Inc()
		return false
	}

	adapterID, errCode, sendErr := d.postToAdapter(ctx, msg, dev)
	if sendErr == nil {
		if _, err := d.store.MarkSent(ctx, msg.ID, adapterID, dev.ID); err != nil {
			d.logger.Error("marking message sent", "error", err, "message_id", msg.ID)
			telemetry.MessagesDispatchedTotal.WithLabelValues("error").Inc()
			return false
		}
		d.webhooks.Fire(ctx, msg.TenantID, store.EventSMSSent, map[string]any{
			"message_id": msg.ID.String(),
			"to":         msg.ToNumber,
			"device_id":  dev.ID.String(),
		})
		telemetry.MessagesDispatchedTotal.WithLabelValues("sent").Inc()
		return true
	}

	permanent := store.IsPermanentErrorCode(errCode)
	if _, err := d.store.MarkFailed(ctx, msg.ID, sendErr.Error(), errCode, permanent); err != nil {
		d.logger.Error("marking message failed", "error", err, "message_id", msg.ID)
	}
	if permanent {
		d.webhooks.Fire(ctx, msg.TenantID, store.EventSMSFailed, map[string]any{
			"message_id": msg.ID.String(),
			"to":         msg.ToNumber,
			"error_code": errCode,
		})
		telemetry.MessagesDispatchedTotal.WithLabelValues("failed_permanent").Inc()
	} else {
		telemetry.MessagesDispatchedTotal.WithLabelValues("retry_scheduled").Inc()
	}
	return false
}

type adapterRequest struct {
	DeviceID string `json:"device_id"`
	To       string `json:"to"`
	Body     string `json:"body"`
}

type adapterResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	ErrorCode string `json:"error_code"`
}

// postToAdapter sends one message via the server-side push adapter,
// returning the adapter-assigned ID on success or an error code/message on
// failure. A non-2xx response with a recognized permanent error code is
// surfaced as such so the caller can fail the message terminally.
func (d *Dispatcher) postToAdapter(ctx context.Context, msg *store.OutboundMessage, dev *store.Device) (adapterID, errorCode string, err error) {
	body, err := json.Marshal(adapterRequest{DeviceID: dev.ID.String(), To: msg.ToNumber, Body: msg.MessageBody})
	if err != nil {
		return "", "SEND_ERROR", fmt.Errorf("marshaling adapter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.AdapterBaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", "SEND_ERROR", fmt.Errorf("building adapter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "ADAPTER_UNREACHABLE", fmt.Errorf("calling adapter: %w", err)
	}
	defer resp.Body.Close()

	var parsed adapterResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		id := parsed.ID
		if id == "" {
			id = uuid.NewString()
		}
		return id, "", nil
	}

	code := parsed.ErrorCode
	if code == "" {
		code = "SEND_ERROR"
	}
	return "", code, fmt.Errorf("adapter returned status %d", resp.StatusCode)
}
