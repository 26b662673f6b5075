// Package pairing mints and redeems one-time pair codes that bootstrap a
// device's long-lived HMAC token, and handles direct token pairing and
// rotation.
package pairing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edierwan/getouch-sub000/internal/store"
)

// ErrInvalidCode is returned for unknown, expired, or already-used pair
// codes. The three failure modes are deliberately indistinguishable to the
// caller.
var ErrInvalidCode = errors.New("invalid or expired pair code")

const (
	codeBytes  = 18 // base64url-encoded below: 18*4/3 = 24 chars, no padding
	tokenBytes = 32
)

type Service struct {
	store *store.Store
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// MintPairCode generates a random code for deviceID, persists its hash and a
// human-recognizable prefix, and returns the raw code exactly once — it is
// never stored or logged in plaintext.
func (s *Service) MintPairCode(ctx context.Context, deviceID uuid.UUID, createdBy string, ttl time.Duration) (code string, expiresAt time.Time, err error) {
	raw, err := randomPairCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generating pair code: %w", err)
	}

	hash, prefix := hashCode(raw)
	pc, err := s.store.CreatePairCode(ctx, deviceID, hash, prefix, createdBy, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storing pair code: %w", err)
	}
	return raw, pc.ExpiresAt, nil
}

// RedeemCode consumes a one-time pair code atomically, marks the device
// online, and merges deviceInfo into its metadata.
func (s *Service) RedeemCode(ctx context.Context, rawCode, usedByIP string, deviceInfo json.RawMessage) (*store.Device, error) {
	hash, _ := hashCode(rawCode)
	device, err := s.store.RedeemPairCode(ctx, hash, usedByIP)
	if err != nil {
		var notFound *store.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("redeeming pair code: %w", err)
	}

	paired, err := s.store.MarkDevicePaired(ctx, device.ID, deviceInfo)
	if err != nil {
		return nil, fmt.Errorf("marking device paired: %w", err)
	}
	return paired, nil
}

// PairByToken looks up a device directly by its long-lived token (the
// operator-entered-manually flow) and marks it online.
func (s *Service) PairByToken(ctx context.Context, deviceToken string, deviceInfo json.RawMessage) (*store.Device, error) {
	device, err := s.store.GetDeviceByToken(ctx, deviceToken)
	if err != nil {
		var notFound *store.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("looking up device by token: %w", err)
	}

	paired, err := s.store.MarkDevicePaired(ctx, device.ID, deviceInfo)
	if err != nil {
		return nil, fmt.Errorf("marking device paired: %w", err)
	}
	return paired, nil
}

// RotateToken generates a fresh device token, invalidating the previous one
// immediately, and returns the new raw token exactly once.
func (s *Service) RotateToken(ctx context.Context, deviceID uuid.UUID) (newToken string, err error) {
	token, err := randomHex(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating device token: %w", err)
	}
	if _, err := s.store.RotateDeviceToken(ctx, deviceID, token); err != nil {
		return "", fmt.Errorf("rotating device token: %w", err)
	}
	return token, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// randomPairCode generates a short, URL-safe code meant to be read aloud or
// typed by an operator pairing a device by hand.
func randomPairCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashCode returns the storage hash and lookup prefix for a raw pair code.
// The prefix is the code's own leading characters, so an operator can match
// a code against a list of outstanding pairings by sight; the full code is
// still required to redeem it, so a leaked prefix alone isn't sufficient to
// brute-force the stored hash.
func hashCode(raw string) (hash, prefix string) {
	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])

	prefix = raw
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return hash, prefix
}
