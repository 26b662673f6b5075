package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deviceColumns = `id, tenant_id, name, phone_number, device_token, status, is_shared_pool, is_enabled, last_seen_at, metadata, created_at, updated_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.PhoneNumber, &d.DeviceToken, &d.Status,
		&d.IsSharedPool, &d.IsEnabled, &d.LastSeenAt, &d.Metadata, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "device"}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	return &d, nil
}

// CreateDevice registers a device. A nil tenantID with isSharedPool=true
// places it in the shared pool (invariant: tenant_id != nil XOR
// is_shared_pool).
func (s *Store) CreateDevice(ctx context.Context, tenantID *uuid.UUID, name string, isSharedPool bool, deviceToken string) (*Device, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO devices (id, tenant_id, name, device_token, status, is_shared_pool, is_enabled, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'offline', $5, true, '{}', now(), now())
		 RETURNING `+deviceColumns,
		uuid.New(), tenantID, name, deviceToken, isSharedPool)
	return scanDevice(row)
}

// GetDeviceByID fetches a device by ID.
func (s *Store) GetDeviceByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

// GetDeviceByToken resolves a device by its raw token, for the token-pairing
// flow.
func (s *Store) GetDeviceByToken(ctx context.Context, deviceToken string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_token = $1`, deviceToken)
	return scanDevice(row)
}

// RotateDeviceToken persists newToken, generated by the caller, replacing
// the previous token immediately.
func (s *Store) RotateDeviceToken(ctx context.Context, id uuid.UUID, newToken string) (*Device, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE devices SET device_token = $2, updated_at = now() WHERE id = $1 RETURNING `+deviceColumns,
		id, newToken)
	return scanDevice(row)
}

// MarkDevicePaired sets a device online, refreshes last_seen_at, and merges
// deviceInfo into metadata.device_info.
func (s *Store) MarkDevicePaired(ctx context.Context, id uuid.UUID, deviceInfo json.RawMessage) (*Device, error) {
	if deviceInfo == nil {
		deviceInfo = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE devices
		 SET status = 'online', last_seen_at = now(), updated_at = now(),
		     metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{device_info}', $2::jsonb, true)
		 WHERE id = $1
		 RETURNING `+deviceColumns,
		id, deviceInfo)
	return scanDevice(row)
}

// Heartbeat refreshes a device's last_seen_at, sets it online, and merges
// arbitrary status metadata (battery/network/app) into metadata.
func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID, meta json.RawMessage) (*Device, error) {
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE devices
		 SET status = 'online', last_seen_at = now(), updated_at = now(),
		     metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb
		 WHERE id = $1
		 RETURNING `+deviceColumns,
		id, meta)
	return scanDevice(row)
}

// PickDevice implements the device-selection policy: preferred (if
// online+enabled) → tenant's most-recently-seen online device → shared
// pool's most-recently-seen online device → nil.
func (s *Store) PickDevice(ctx context.Context, tenantID uuid.UUID, preferredDeviceID *uuid.UUID) (*Device, error) {
	if preferredDeviceID != nil {
		row := s.pool.QueryRow(ctx,
			`SELECT `+deviceColumns+` FROM devices WHERE id = $1 AND status = 'online' AND is_enabled = true`,
			*preferredDeviceID)
		d, err := scanDevice(row)
		if err == nil {
			return d, nil
		}
		var notFound *ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE tenant_id = $1 AND status = 'online' AND is_enabled = true
		 ORDER BY last_seen_at DESC LIMIT 1`, tenantID)
	d, err := scanDevice(row)
	if err == nil {
		return d, nil
	}
	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}

	row = s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE is_shared_pool = true AND status = 'online' AND is_enabled = true
		 ORDER BY last_seen_at DESC LIMIT 1`)
	d, err = scanDevice(row)
	if err == nil {
		return d, nil
	}
	if errors.As(err, &notFound) {
		return nil, nil
	}
	return nil, err
}

// MarkStaleDevicesOffline demotes devices whose last_seen_at is older than
// threshold from online to offline, returning the count affected.
func (s *Store) MarkStaleDevicesOffline(ctx context.Context, thresholdMS int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE devices SET status = 'offline', updated_at = now()
		 WHERE status = 'online' AND last_seen_at < now() - ($1 * interval '1 millisecond')`,
		thresholdMS)
	if err != nil {
		return 0, fmt.Errorf("sweeping stale devices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDevicesByTenant lists a tenant's own devices (excludes shared pool).
func (s *Store) ListDevicesByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.PhoneNumber, &d.DeviceToken, &d.Status,
			&d.IsSharedPool, &d.IsEnabled, &d.LastSeenAt, &d.Metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
