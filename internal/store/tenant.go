package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateTenant inserts a new tenant. Returns a conflict-shaped error if the
// slug is already taken.
func (s *Store) CreateTenant(ctx context.Context, slug, name, plan string) (*Tenant, error) {
	var t Tenant
	t.Settings = json.RawMessage(`{}`)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, slug, name, plan, status, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'active', $5, now(), now())
		 RETURNING id, slug, name, plan, status, settings, created_at, updated_at`,
		uuid.New(), slug, name, plan, t.Settings,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Plan, &t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	return &t, nil
}

// GetTenantByID fetches a tenant by ID.
func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, slug, name, plan, status, settings, created_at, updated_at, suspended_at
		 FROM tenants WHERE id = $1`, id)
}

// GetTenantBySlug fetches a tenant by slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, slug, name, plan, status, settings, created_at, updated_at, suspended_at
		 FROM tenants WHERE slug = $1`, slug)
}

func (s *Store) scanTenant(ctx context.Context, query string, arg any) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.Slug, &t.Name, &t.Plan, &t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt, &t.SuspendedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "tenant"}
	}
	if err != nil {
		return nil, fmt.Errorf("fetching tenant: %w", err)
	}
	return &t, nil
}

// ListTenants returns tenants ordered by creation time, most recent first.
func (s *Store) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, slug, name, plan, status, settings, created_at, updated_at, suspended_at
		 FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Plan, &t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt, &t.SuspendedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SuspendTenant transitions a tenant to suspended. Suspension blocks all API
// auth for its keys. Tenants are never hard-deleted.
func (s *Store) SuspendTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = 'suspended', suspended_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("suspending tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Resource: "tenant"}
	}
	return nil
}

// ReactivateTenant transitions a suspended tenant back to active.
func (s *Store) ReactivateTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = 'active', suspended_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'suspended'`, id)
	if err != nil {
		return fmt.Errorf("reactivating tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Resource: "tenant"}
	}
	return nil
}
