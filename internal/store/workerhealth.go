package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetWorkerHealth fetches the singleton dispatcher heartbeat row, creating
// it on first use.
func (s *Store) GetWorkerHealth(ctx context.Context) (*WorkerHealth, error) {
	var h WorkerHealth
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, last_heartbeat, messages_processed FROM worker_health WHERE id = 'main'`,
	).Scan(&h.ID, &h.Status, &h.LastHeartbeat, &h.MessagesProcessed)
	if err == nil {
		return &h, nil
	}

	_, insertErr := s.pool.Exec(ctx,
		`INSERT INTO worker_health (id, status, last_heartbeat, messages_processed)
		 VALUES ('main', 'offline', now(), 0) ON CONFLICT (id) DO NOTHING`)
	if insertErr != nil {
		return nil, fmt.Errorf("initializing worker health: %w", insertErr)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT id, status, last_heartbeat, messages_processed FROM worker_health WHERE id = 'main'`,
	).Scan(&h.ID, &h.Status, &h.LastHeartbeat, &h.MessagesProcessed)
	if err != nil {
		return nil, fmt.Errorf("fetching worker health: %w", err)
	}
	return &h, nil
}

// RecordHeartbeat updates the singleton worker health row after a dispatch
// cycle, incrementing messages_processed by succeeded.
func (s *Store) RecordHeartbeat(ctx context.Context, status string, succeeded int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO worker_health (id, status, last_heartbeat, messages_processed)
		 VALUES ('main', $1, now(), $2)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   last_heartbeat = now(),
		   messages_processed = worker_health.messages_processed + $2`,
		status, succeeded)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	return nil
}

// QueueDepth returns the number of messages currently queued (not yet processing).
func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM outbound_messages WHERE status = 'queued'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return n, nil
}

// FailureCountSince returns the number of messages that failed terminally
// within the given lookback window, used by the health roll-up.
func (s *Store) FailureCountSince(ctx context.Context, hours int) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM outbound_messages WHERE status = 'failed' AND failed_at > now() - ($1 * interval '1 hour')`,
		hours,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent failures: %w", err)
	}
	return n, nil
}

// AnyDeviceOnline reports whether at least one device is currently online.
func (s *Store) AnyDeviceOnline(ctx context.Context) (bool, error) {
	var online bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE status = 'online')`).Scan(&online)
	if err != nil {
		return false, fmt.Errorf("checking device online status: %w", err)
	}
	return online, nil
}

// TenantMessageCounts is one tenant's outbound message count, used by the
// admin stats roll-up (SPEC_FULL.md §3).
type TenantMessageCounts struct {
	TenantID uuid.UUID
	Count    int64
}

// TenantMessageStats returns outbound message counts grouped by tenant,
// most active first, capped at limit tenants.
func (s *Store) TenantMessageStats(ctx context.Context, limit int) ([]TenantMessageCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, count(*) FROM outbound_messages GROUP BY tenant_id ORDER BY count(*) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregating tenant message stats: %w", err)
	}
	defer rows.Close()

	var out []TenantMessageCounts
	for rows.Next() {
		var c TenantMessageCounts
		if err := rows.Scan(&c.TenantID, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning tenant message stats: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
