package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAPIKey inserts a new API key. keyHash/keyLast4 are derived by the
// caller from the raw secret, which is never persisted.
func (s *Store) CreateAPIKey(ctx context.Context, tenantID uuid.UUID, name, keyHash, keyLast4 string, scopes []string, rpm int, expiresAt *time.Time) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_last4, scopes, rate_limit_rpm, is_active, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, now())
		 RETURNING id, tenant_id, name, key_hash, key_last4, scopes, rate_limit_rpm, is_active, last_used_at, expires_at, created_at, revoked_at`,
		uuid.New(), tenantID, name, keyHash, keyLast4, scopes, rpm, expiresAt,
	).Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyLast4, &k.Scopes, &k.RateLimitRPM,
		&k.IsActive, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("creating api key: %w", err)
	}
	return &k, nil
}

// GetAPIKeyByHash resolves the bearer credential presented by a tenant
// request. Returns ErrNotFound if no key matches; inactive keys are returned
// as well and left to the caller to reject.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, key_hash, key_last4, scopes, rate_limit_rpm, is_active, last_used_at, expires_at, created_at, revoked_at
		 FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyLast4, &k.Scopes, &k.RateLimitRPM,
		&k.IsActive, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "api_key"}
	}
	if err != nil {
		return nil, fmt.Errorf("fetching api key: %w", err)
	}
	return &k, nil
}

// TouchAPIKeyLastUsed updates last_used_at. Intended to be called through a
// fire-and-forget task queue.
func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching api key last_used_at: %w", err)
	}
	return nil
}

// RevokeAPIKey marks a key inactive and stamps revoked_at.
func (s *Store) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = false, revoked_at = now() WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Resource: "api_key"}
	}
	return nil
}

// ListAPIKeysByTenant lists a tenant's API keys.
func (s *Store) ListAPIKeysByTenant(ctx context.Context, tenantID uuid.UUID) ([]*APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_last4, scopes, rate_limit_rpm, is_active, last_used_at, expires_at, created_at, revoked_at
		 FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyLast4, &k.Scopes, &k.RateLimitRPM,
			&k.IsActive, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}
