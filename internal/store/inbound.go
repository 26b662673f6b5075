package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const inboundColumns = `id, tenant_id, device_id, from_number, to_number, message_body, external_id, metadata, created_at`

func scanInbound(row pgx.Row) (*InboundMessage, error) {
	var m InboundMessage
	err := row.Scan(&m.ID, &m.TenantID, &m.DeviceID, &m.FromNumber, &m.ToNumber, &m.MessageBody, &m.ExternalID, &m.Metadata, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "inbound_message"}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning inbound message: %w", err)
	}
	return &m, nil
}

// CreateInboundResult carries the inserted (or pre-existing, on idempotent
// ingestion) row plus whether it was a replay.
type CreateInboundResult struct {
	Message    *InboundMessage
	Idempotent bool
}

// CreateInbound ingests an inbound SMS. On a unique-violation of
// (tenant_id, external_id), it returns the existing row with
// Idempotent=true and the caller must not re-fire webhooks.
func (s *Store) CreateInbound(ctx context.Context, tenantID uuid.UUID, deviceID *uuid.UUID, fromNumber string, toNumber *string, body string, externalID *string, metadata json.RawMessage) (*CreateInboundResult, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO inbound_messages (id, tenant_id, device_id, from_number, to_number, message_body, external_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 RETURNING `+inboundColumns,
		uuid.New(), tenantID, deviceID, fromNumber, toNumber, body, externalID, metadata)

	m, err := scanInbound(row)
	if err == nil {
		return &CreateInboundResult{Message: m}, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && externalID != nil {
		existing, getErr := s.getInboundByExternalID(ctx, tenantID, *externalID)
		if getErr != nil {
			return nil, fmt.Errorf("fetching existing inbound message after conflict: %w", getErr)
		}
		return &CreateInboundResult{Message: existing, Idempotent: true}, nil
	}
	return nil, fmt.Errorf("creating inbound message: %w", err)
}

func (s *Store) getInboundByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*InboundMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+inboundColumns+` FROM inbound_messages WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID)
	return scanInbound(row)
}

// ListInboundFilter narrows ListInbound results. From/To, when set, bound
// created_at to a half-open window [From, To).
type ListInboundFilter struct {
	TenantID uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// ListInboundAllTenants returns inbound messages across every tenant, most
// recent first, optionally narrowed to a single tenant and/or a created_at
// time window. Used by the admin surface.
func (s *Store) ListInboundAllTenants(ctx context.Context, tenantID *uuid.UUID, from, to *time.Time, limit, offset int) ([]*InboundMessage, error) {
	query := `SELECT ` + inboundColumns + ` FROM inbound_messages WHERE true`
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
		return nil, fmt.Errorf("listing inbound messages across tenants: %w", err)
	}
	defer rows.Close()

	var out []*InboundMessage
	for rows.Next() {
		var m InboundMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.DeviceID, &m.FromNumber, &m.ToNumber, &m.MessageBody, &m.ExternalID, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ListInbound returns a tenant's inbound messages, most recent first,
// optionally narrowed to a created_at time window.
func (s *Store) ListInbound(ctx context.Context, f ListInboundFilter) ([]*InboundMessage, error) {
	query := `SELECT ` + inboundColumns + ` FROM inbound_messages WHERE tenant_id = $1`
	args := []any{f.TenantID}
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
		return nil, fmt.Errorf("listing inbound messages: %w", err)
	}
	defer rows.Close()

	var out []*InboundMessage
	for rows.Next() {
		var m InboundMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.DeviceID, &m.FromNumber, &m.ToNumber, &m.MessageBody, &m.ExternalID, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
