package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookColumns = `id, tenant_id, event_type, url, signing_secret, is_active, max_retries, backoff_ms, last_triggered, last_status, created_at, updated_at`

func scanWebhook(row pgx.Row) (*Webhook, error) {
	var w Webhook
	err := row.Scan(&w.ID, &w.TenantID, &w.EventType, &w.URL, &w.SigningSecret, &w.IsActive,
		&w.MaxRetries, &w.BackoffMS, &w.LastTriggered, &w.LastStatus, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "webhook"}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning webhook: %w", err)
	}
	return &w, nil
}

// CreateWebhook registers a tenant webhook for an event type with a random
// signing secret returned once.
func (s *Store) CreateWebhook(ctx context.Context, tenantID uuid.UUID, eventType, url, signingSecret string, maxRetries, backoffMS int) (*Webhook, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO webhooks (id, tenant_id, event_type, url, signing_secret, is_active, max_retries, backoff_ms, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $7, now(), now())
		 RETURNING `+webhookColumns,
		uuid.New(), tenantID, eventType, url, signingSecret, maxRetries, backoffMS)
	return scanWebhook(row)
}

// ListWebhooksForEvent returns active webhooks matching tenantID and eventType.
func (s *Store) ListWebhooksForEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE tenant_id = $1 AND event_type = $2 AND is_active = true`,
		tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var out []*Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.TenantID, &w.EventType, &w.URL, &w.SigningSecret, &w.IsActive,
			&w.MaxRetries, &w.BackoffMS, &w.LastTriggered, &w.LastStatus, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// ListWebhooksByTenant lists all of a tenant's webhooks regardless of event type.
func (s *Store) ListWebhooksByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Webhook, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var out []*Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.TenantID, &w.EventType, &w.URL, &w.SigningSecret, &w.IsActive,
			&w.MaxRetries, &w.BackoffMS, &w.LastTriggered, &w.LastStatus, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// RecordWebhookDelivery updates last_triggered/last_status after a delivery
// attempt completes. Called fire-and-forget; failures are logged, never
// surfaced.
func (s *Store) RecordWebhookDelivery(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE webhooks SET last_triggered = now(), last_status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("recording webhook delivery: %w", err)
	}
	return nil
}

// RotateWebhookSecret replaces a webhook's signing secret; the previous
// secret is invalid immediately.
func (s *Store) RotateWebhookSecret(ctx context.Context, id uuid.UUID, newSecret string) (*Webhook, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE webhooks SET signing_secret = $2, updated_at = now() WHERE id = $1 RETURNING `+webhookColumns,
		id, newSecret)
	return scanWebhook(row)
}

// DeleteWebhook removes a webhook row.
func (s *Store) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Resource: "webhook"}
	}
	return nil
}
