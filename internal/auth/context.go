package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Method describes how the caller authenticated for the current request.
const (
	MethodAPIKey      = "apikey"
	MethodDevice      = "device"
	MethodAdminToken  = "admin_token"
	MethodAdminHeader = "admin_header"
	MethodInternal    = "internal"
)

// Principal represents the authenticated caller for the current request:
// a tenant API key, a paired device, or an admin operator. Handlers read it
// from the request context rather than re-deriving identity from headers.
type Principal struct {
	TenantID uuid.UUID  // zero for admin/internal callers not scoped to a tenant
	Actor    string     // human-readable identity for audit logging
	Method   string     // one of the Method* constants
	APIKeyID *uuid.UUID // non-nil when Method == MethodAPIKey
	Scopes   []string   // API key scopes, e.g. "sms:send", "sms:read", "sms:inbox"
	DeviceID *uuid.UUID // non-nil when Method == MethodDevice
}

// HasScope reports whether the principal's API key carries the given scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// NewContext stores the principal in the context.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal from the context. ok is false if no
// principal has been set (e.g. an unauthenticated request path).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// HashKey returns the SHA-256 hex digest of a raw API key or device token,
// the form persisted in the database; keys are never stored in plaintext.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
