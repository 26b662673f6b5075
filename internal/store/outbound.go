package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const outboundColumns = `id, tenant_id, to_number, message_body, status, from_device_id, preferred_device_id,
	external_id, idempotency_key, attempts, max_attempts, next_retry_at, last_error, error_code,
	metadata, created_at, updated_at, delivered_at, failed_at`

func scanOutbound(row pgx.Row) (*OutboundMessage, error) {
	var m OutboundMessage
	err := row.Scan(&m.ID, &m.TenantID, &m.ToNumber, &m.MessageBody, &m.Status, &m.FromDeviceID, &m.PreferredDeviceID,
		&m.ExternalID, &m.IdempotencyKey, &m.Attempts, &m.MaxAttempts, &m.NextRetryAt, &m.LastError, &m.ErrorCode,
		&m.Metadata, &m.CreatedAt, &m.UpdatedAt, &m.DeliveredAt, &m.FailedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "message"}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning outbound message: %w", err)
	}
	return &m, nil
}

// CreateOutboundResult carries the inserted (or pre-existing, on idempotent
// replay) row plus whether it was a replay.
type CreateOutboundResult struct {
	Message    *OutboundMessage
	Idempotent bool
}

// CreateOutbound inserts a queued message. On a unique-violation of
// (tenant_id, idempotency_key), it returns the existing row with
// Idempotent=true instead of erroring.
func (s *Store) CreateOutbound(ctx context.Context, tenantID uuid.UUID, toNumber, body string, preferredDeviceID *uuid.UUID, idempotencyKey *string, maxAttempts int, metadata json.RawMessage) (*CreateOutboundResult, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO outbound_messages
		   (id, tenant_id, to_number, message_body, status, preferred_device_id, idempotency_key,
		    attempts, max_attempts, next_retry_at, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', $5, $6, 0, $7, now(), $8, now(), now())
		 RETURNING `+outboundColumns,
		id, tenantID, toNumber, body, preferredDeviceID, idempotencyKey, maxAttempts, metadata)

	m, err := scanOutbound(row)
	if err == nil {
		if insertErr := s.insertTimeline(ctx, m.ID, DirectionOutbound, "queued", nil); insertErr != nil {
			s.logger.Error("writing queued timeline entry", "error", insertErr, "message_id", m.ID)
		}
		return &CreateOutboundResult{Message: m}, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && idempotencyKey != nil {
		existing, getErr := s.getOutboundByIdempotencyKey(ctx, tenantID, *idempotencyKey)
		if getErr != nil {
			return nil, fmt.Errorf("fetching existing outbound message after conflict: %w", getErr)
		}
		return &CreateOutboundResult{Message: existing, Idempotent: true}, nil
	}
	return nil, fmt.Errorf("creating outbound message: %w", err)
}

func (s *Store) getOutboundByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*OutboundMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+outboundColumns+` FROM outbound_messages WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key)
	return scanOutbound(row)
}

// GetOutboundByID fetches a message scoped to a tenant.
func (s *Store) GetOutboundByID(ctx context.Context, tenantID, id uuid.UUID) (*OutboundMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+outboundColumns+` FROM outbound_messages WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanOutbound(row)
}

// ListOutboundFilter narrows ListOutbound results. From/To, when set, bound
// created_at to a half-open window [From, To).
type ListOutboundFilter struct {
	TenantID uuid.UUID
	Status   *MessageStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// ListOutbound returns a tenant's outbound messages, optionally filtered by
// status and/or a created_at time window.
func (s *Store) ListOutbound(ctx context.Context, f ListOutboundFilter) ([]*OutboundMessage, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbound_messages WHERE tenant_id = $1`
	args := []any{f.TenantID}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, *f.Status)
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *f.From)
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, *f.To)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing outbound messages: %w", err)
	}
	defer rows.Close()

	var out []*OutboundMessage
	for rows.Next() {
		m, err := scanOutboundRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListOutboundAllTenants returns outbound messages across every tenant,
// most recent first, optionally narrowed to a single tenant and/or a
// created_at time window. Used by the admin surface, which is not scoped to
// one tenant's credentials.
func (s *Store) ListOutboundAllTenants(ctx context.Context, tenantID *uuid.UUID, from, to *time.Time, limit, offset int) ([]*OutboundMessage, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbound_messages WHERE true`
	var args []any
	if tenantID != nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args)+1)
		args = append(args, *tenantID)
	}
	if from != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, *to)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing outbound messages across tenants: %w", err)
	}
	defer rows.Close()

	var out []*OutboundMessage
	for rows.Next() {
		m, err := scanOutboundRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOutboundRows(rows pgx.Rows) (*OutboundMessage, error) {
	var m OutboundMessage
	err := rows.Scan(&m.ID, &m.TenantID, &m.ToNumber, &m.MessageBody, &m.Status, &m.FromDeviceID, &m.PreferredDeviceID,
		&m.ExternalID, &m.IdempotencyKey, &m.Attempts, &m.MaxAttempts, &m.NextRetryAt, &m.LastError, &m.ErrorCode,
		&m.Metadata, &m.CreatedAt, &m.UpdatedAt, &m.DeliveredAt, &m.FailedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning outbound message: %w", err)
	}
	return &m, nil
}

// LeaseQueuedMessages atomically leases up to limit queued, due messages
// using SELECT ... FOR UPDATE SKIP LOCKED, so concurrent dispatcher workers
// or gateway processes never double-lease a row.
func (s *Store) LeaseQueuedMessages(ctx context.Context, limit int) ([]*OutboundMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning lease transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id FROM outbound_messages
		 WHERE status = 'queued' AND next_retry_at <= now() AND attempts < max_attempts
		 ORDER BY next_retry_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting leasable messages: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning leasable message id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	leaseRows, err := tx.Query(ctx,
		`UPDATE outbound_messages SET status = 'processing', updated_at = now()
		 WHERE id = ANY($1) RETURNING `+outboundColumns, ids)
	if err != nil {
		return nil, fmt.Errorf("leasing messages: %w", err)
	}

	var out []*OutboundMessage
	for leaseRows.Next() {
		m, err := scanOutboundRows(leaseRows)
		if err != nil {
			leaseRows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	leaseRows.Close()
	if err := leaseRows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing lease transaction: %w", err)
	}
	return out, nil
}

// LeaseForDevicePull atomically leases up to limit queued messages assigned
// to deviceID, to its tenant, or (if shared-pool) unassigned anywhere, and
// stamps from_device_id = deviceID. The pull itself is the lease; the
// background dispatcher never double-leases the same rows.
func (s *Store) LeaseForDevicePull(ctx context.Context, deviceID uuid.UUID, tenantID *uuid.UUID, isSharedPool bool, limit int) ([]*OutboundMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning device pull transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT id FROM outbound_messages
		WHERE status = 'queued' AND next_retry_at <= now() AND attempts < max_attempts
		  AND (preferred_device_id = $1`
	args := []any{deviceID}
	if tenantID != nil {
		query += fmt.Sprintf(" OR tenant_id = $%d", len(args)+1)
		args = append(args, *tenantID)
	}
	if isSharedPool {
		query += " OR preferred_device_id IS NULL"
	}
	query += fmt.Sprintf(") ORDER BY next_retry_at ASC LIMIT $%d FOR UPDATE SKIP LOCKED", len(args)+1)
	args = append(args, limit)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting pullable messages: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	leaseRows, err := tx.Query(ctx,
		`UPDATE outbound_messages SET status = 'processing', from_device_id = $2, updated_at = now()
		 WHERE id = ANY($1) RETURNING `+outboundColumns, ids, deviceID)
	if err != nil {
		return nil, fmt.Errorf("leasing pulled messages: %w", err)
	}
	var out []*OutboundMessage
	for leaseRows.Next() {
		m, err := scanOutboundRows(leaseRows)
		if err != nil {
			leaseRows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	leaseRows.Close()
	if err := leaseRows.Err(); err != nil {
		return nil, err
	}

	return out, tx.Commit(ctx)
}

// RequeueStaleProcessing re-queues messages that have been in processing
// longer than threshold without an ACK — the reaper half of pull mode.
func (s *Store) RequeueStaleProcessing(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbound_messages SET status = 'queued', attempts = attempts + 1, updated_at = now()
		 WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		fmt.Sprintf("%d milliseconds", threshold.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("requeuing stale processing messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkSent transitions a message to sent, incrementing attempts and
// recording the adapter/device-assigned external ID.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, externalID string, deviceID uuid.UUID) (*OutboundMessage, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE outbound_messages
		 SET status = 'sent', attempts = attempts + 1, external_id = $2, from_device_id = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+outboundColumns,
		id, externalID, deviceID)
	m, err := scanOutbound(row)
	if err != nil {
		return nil, err
	}
	if err := s.insertTimeline(ctx, m.ID, DirectionOutbound, "sent", nil); err != nil {
		s.logger.Error("writing sent timeline entry", "error", err, "message_id", m.ID)
	}
	return m, nil
}

// MarkDelivered transitions a sent message to delivered. Called from any
// other state it is a no-op that still appends a delivery_late timeline
// entry.
func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (*OutboundMessage, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE outbound_messages SET status = 'delivered', delivered_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'sent'
		 RETURNING `+outboundColumns,
		id)
	m, err := scanOutbound(row)
	if err == nil {
		if tlErr := s.insertTimeline(ctx, m.ID, DirectionOutbound, "delivered", nil); tlErr != nil {
			s.logger.Error("writing delivered timeline entry", "error", tlErr, "message_id", m.ID)
		}
		return m, nil
	}

	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}

	existing, getErr := s.GetOutboundByIDUnscoped(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if tlErr := s.insertTimeline(ctx, id, DirectionOutbound, "delivery_late", nil); tlErr != nil {
		s.logger.Error("writing delivery_late timeline entry", "error", tlErr, "message_id", id)
	}
	return existing, nil
}

// GetOutboundByIDUnscoped fetches a message by ID without a tenant filter,
// used by internal device-facing flows that have already authenticated the
// device rather than a tenant bearer.
func (s *Store) GetOutboundByIDUnscoped(ctx context.Context, id uuid.UUID) (*OutboundMessage, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+outboundColumns+` FROM outbound_messages WHERE id = $1`, id)
	return scanOutbound(row)
}

// backoffDuration returns the exponential backoff delay before the next
// retry attempt: 2^min(attempts,5) * 30s, i.e. 30s, 1m, 2m, 4m, 8m, 16m cap.
func backoffDuration(attempts int) time.Duration {
	capped := attempts
	if capped > 5 {
		capped = 5
	}
	return time.Duration(math.Pow(2, float64(capped))) * 30 * time.Second
}

// MarkFailed handles a failed delivery attempt. If permanent (a permanent
// error code, or attempts already exhausted), the message moves to failed
// terminally; otherwise it's requeued with exponential backoff.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg, errorCode string, permanent bool) (*OutboundMessage, error) {
	current, err := s.GetOutboundByIDUnscoped(ctx, id)
	if err != nil {
		return nil, err
	}

	if !permanent && current.Attempts+1 >= current.MaxAttempts {
		permanent = true
	}

	if permanent {
		row := s.pool.QueryRow(ctx,
			`UPDATE outbound_messages
			 SET status = 'failed', attempts = attempts + 1, last_error = $2, error_code = $3, failed_at = now(), updated_at = now()
			 WHERE id = $1
			 RETURNING `+outboundColumns,
			id, errMsg, errorCode)
		m, err := scanOutbound(row)
		if err != nil {
			return nil, err
		}
		if tlErr := s.insertTimeline(ctx, m.ID, DirectionOutbound, "failed", nil); tlErr != nil {
			s.logger.Error("writing failed timeline entry", "error", tlErr, "message_id", m.ID)
		}
		return m, nil
	}

	nextRetry := time.Now().Add(backoffDuration(current.Attempts + 1))
	row := s.pool.QueryRow(ctx,
		`UPDATE outbound_messages
		 SET status = 'queued', attempts = attempts + 1, last_error = $2, error_code = $3, next_retry_at = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+outboundColumns,
		id, errMsg, errorCode, nextRetry)
	m, err := scanOutbound(row)
	if err != nil {
		return nil, err
	}
	if tlErr := s.insertTimeline(ctx, m.ID, DirectionOutbound, "retry_scheduled", nil); tlErr != nil {
		s.logger.Error("writing retry_scheduled timeline entry", "error", tlErr, "message_id", m.ID)
	}
	return m, nil
}

func (s *Store) insertTimeline(ctx context.Context, messageID uuid.UUID, direction EventDirection, status string, details json.RawMessage) error {
	if details == nil {
		details = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO status_events (id, message_id, direction, status, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.New(), messageID, direction, status, details)
	return err
}

// ListTimeline returns a message's append-only status events in chronological order.
func (s *Store) ListTimeline(ctx context.Context, messageID uuid.UUID) ([]*StatusEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, direction, status, details, created_at
		 FROM status_events WHERE message_id = $1 ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing timeline: %w", err)
	}
	defer rows.Close()

	var out []*StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Direction, &e.Status, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning timeline entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
