package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreatePairCode inserts a pair code record. codeHash/codePrefix are derived
// by the caller from the raw code, which is returned to the admin exactly
// once and never persisted.
func (s *Store) CreatePairCode(ctx context.Context, deviceID uuid.UUID, codeHash, codePrefix, createdBy string, ttl time.Duration) (*PairCode, error) {
	var pc PairCode
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pair_codes (id, code_hash, code_prefix, device_id, created_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, now() + $6::interval)
		 RETURNING id, code_hash, code_prefix, device_id, created_by, expires_at, used_at, used_by_ip`,
		uuid.New(), codeHash, codePrefix, deviceID, createdBy, fmt.Sprintf("%d milliseconds", ttl.Milliseconds()),
	).Scan(&pc.ID, &pc.CodeHash, &pc.CodePrefix, &pc.DeviceID, &pc.CreatedBy, &pc.ExpiresAt, &pc.UsedAt, &pc.UsedByIP)
	if err != nil {
		return nil, fmt.Errorf("creating pair code: %w", err)
	}
	return &pc, nil
}

// RedeemPairCode atomically consumes a pair code in a single UPDATE guarded
// by `used_at IS NULL AND expires_at > NOW()`, so concurrent redemption
// attempts race safely and exactly one succeeds.
// Returns the paired device on success, or ErrNotFound (deliberately
// indistinguishable from "already used"/"expired") on failure.
func (s *Store) RedeemPairCode(ctx context.Context, codeHash, usedByIP string) (*Device, error) {
	var deviceID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`UPDATE pair_codes SET used_at = now(), used_by_ip = $2
		 WHERE code_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING device_id`,
		codeHash, usedByIP,
	).Scan(&deviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Resource: "pair_code"}
	}
	if err != nil {
		return nil, fmt.Errorf("redeeming pair code: %w", err)
	}
	return s.GetDeviceByID(ctx, deviceID)
}

// ListPairCodesByDevice lists pair codes minted for a device, most recent first.
func (s *Store) ListPairCodesByDevice(ctx context.Context, deviceID uuid.UUID) ([]*PairCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code_hash, code_prefix, device_id, created_by, expires_at, used_at, used_by_ip
		 FROM pair_codes WHERE device_id = $1 ORDER BY expires_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing pair codes: %w", err)
	}
	defer rows.Close()

	var out []*PairCode
	for rows.Next() {
		var pc PairCode
		if err := rows.Scan(&pc.ID, &pc.CodeHash, &pc.CodePrefix, &pc.DeviceID, &pc.CreatedBy, &pc.ExpiresAt, &pc.UsedAt, &pc.UsedByIP); err != nil {
			return nil, fmt.Errorf("scanning pair code: %w", err)
		}
		out = append(out, &pc)
	}
	return out, rows.Err()
}
