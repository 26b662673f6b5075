package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is a read projection of a row written by internal/audit's
// async Writer.
type AuditLogEntry struct {
	ID         uuid.UUID
	TenantID   *uuid.UUID
	Actor      string
	Action     string
	Resource   string
	ResourceID *string
	Details    json.RawMessage
	IPAddress  *string
	UserAgent  *string
	CreatedAt  time.Time
}

// ListAuditLog returns audit entries, most recent first, optionally scoped
// to a tenant.
func (s *Store) ListAuditLog(ctx context.Context, tenantID *uuid.UUID, limit, offset int) ([]*AuditLogEntry, error) {
	query := `SELECT id, tenant_id, actor, action, resource, resource_id, details, ip_address, user_agent, created_at
		FROM audit_log`
	args := []any{}
	if tenantID != nil {
		query += " WHERE tenant_id = $1"
		args = append(args, *tenantID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var out []*AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Actor, &e.Action, &e.Resource, &e.ResourceID, &e.Details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
