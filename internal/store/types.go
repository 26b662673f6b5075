// Package store wraps a PostgreSQL connection pool with the durable
// persistence operations the rest of the gateway core uses: tenants, API
// keys, devices, outbound/inbound messages, timeline events, pair codes,
// webhooks, and worker health.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TenantStatus is one of a Tenant's lifecycle states.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is an administrative boundary owning keys, devices, messages, and
// webhooks.
type Tenant struct {
	ID          uuid.UUID
	Slug        string
	Name        string
	Plan        string
	Status      TenantStatus
	Settings    json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SuspendedAt *time.Time
}

// APIKey is a tenant-scoped bearer credential.
type APIKey struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	KeyHash     string
	KeyLast4    string
	Scopes      []string
	RateLimitRPM int
	IsActive    bool
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// Scope constants an API key may carry.
const (
	ScopeSend  = "sms:send"
	ScopeRead  = "sms:read"
	ScopeInbox = "sms:inbox"
)

// HasScope reports whether the key carries scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// DeviceStatus is one of a Device's operational states.
type DeviceStatus string

const (
	DeviceOnline   DeviceStatus = "online"
	DeviceOffline  DeviceStatus = "offline"
	DeviceDegraded DeviceStatus = "degraded"
)

// Device is a registered Android handset used as SMS egress transport.
// TenantID is nil for shared-pool devices.
type Device struct {
	ID           uuid.UUID
	TenantID     *uuid.UUID
	Name         string
	PhoneNumber  *string
	DeviceToken  string
	Status       DeviceStatus
	IsSharedPool bool
	IsEnabled    bool
	LastSeenAt   *time.Time
	Metadata     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PairCode is a one-time, TTL-bounded secret used to bootstrap a device's
// long-lived token.
type PairCode struct {
	ID         uuid.UUID
	CodeHash   string
	CodePrefix string
	DeviceID   uuid.UUID
	CreatedBy  string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	UsedByIP   *string
}

// MessageStatus is one of an OutboundMessage's lifecycle states.
type MessageStatus string

const (
	StatusQueued     MessageStatus = "queued"
	StatusProcessing MessageStatus = "processing"
	StatusSent       MessageStatus = "sent"
	StatusDelivered  MessageStatus = "delivered"
	StatusFailed     MessageStatus = "failed"
)

// OutboundMessage is an SMS queued for delivery via a registered device.
type OutboundMessage struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	ToNumber           string
	MessageBody        string
	Status             MessageStatus
	FromDeviceID       *uuid.UUID
	PreferredDeviceID  *uuid.UUID
	ExternalID         *string
	IdempotencyKey     *string
	Attempts           int
	MaxAttempts        int
	NextRetryAt        time.Time
	LastError          *string
	ErrorCode          *string
	Metadata           json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeliveredAt        *time.Time
	FailedAt           *time.Time
}

// InboundMessage is an SMS received by a device and ingested into the
// gateway.
type InboundMessage struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	DeviceID   *uuid.UUID
	FromNumber string
	ToNumber   *string
	MessageBody string
	ExternalID *string
	Metadata   json.RawMessage
	CreatedAt  time.Time
}

// EventDirection is the direction of a StatusEvent.
type EventDirection string

const (
	DirectionInbound  EventDirection = "inbound"
	DirectionOutbound EventDirection = "outbound"
)

// StatusEvent is an append-only timeline entry for a message.
type StatusEvent struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	Direction EventDirection
	Status    string
	Details   json.RawMessage
	CreatedAt time.Time
}

// Webhook is a tenant-registered, signed HTTP callback for lifecycle events.
type Webhook struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EventType      string
	URL            string
	SigningSecret  string
	IsActive       bool
	MaxRetries     int
	BackoffMS      int
	LastTriggered  *time.Time
	LastStatus     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Webhook event types.
const (
	EventSMSSent      = "sms.sent"
	EventSMSDelivered = "sms.delivered"
	EventSMSFailed    = "sms.failed"
	EventSMSInbound   = "sms.inbound"
)

// WorkerHealth is the singleton dispatcher heartbeat row.
type WorkerHealth struct {
	ID                string
	Status            string
	LastHeartbeat     time.Time
	MessagesProcessed int64
}

// Permanent adapter/device error codes; anything else is
// treated as transient.
var permanentErrorCodes = map[string]bool{
	"INVALID_NUMBER": true,
	"BLOCKED":         true,
	"SIM_ERROR":       true,
}

// IsPermanentErrorCode reports whether code is one of the permanent error
// codes that should move a message straight to failed.
func IsPermanentErrorCode(code string) bool {
	return permanentErrorCodes[code]
}
