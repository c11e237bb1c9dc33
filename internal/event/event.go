package event

import (
	"context"
	"time"
)

// Device classes accepted at the boundary. Events stored without a device are
// bucketed under DeviceUnknown during aggregation.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceOther   = "other"
	DeviceUnknown = "unknown"
)

// Event is one captured occurrence attributed to a tenant. Rows are
// append-only and never mutated after insert.
type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	EventType  string         `json:"event_type"`
	URL        string         `json:"url,omitempty"`
	Referrer   string         `json:"referrer,omitempty"`
	Device     string         `json:"device,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Payload is a validated inbound event. Validation (type pattern, URL
// well-formedness, device enum) happens at the transport boundary; by the
// time a Payload reaches the ingestor it is assumed well-formed.
type Payload struct {
	EventType  string
	URL        string
	Referrer   string
	Device     string
	Metadata   map[string]any
	SessionID  string
	UserID     string
	OccurredAt *time.Time
}

// Repository defines the interface for event storage
type Repository interface {
	// Insert durably appends one event row.
	Insert(ctx context.Context, e *Event) error
}

// Scheduler accepts recompute triggers for summary keys. Implementations must
// not block and must not surface failures to the caller.
type Scheduler interface {
	Schedule(tenantID, eventType string, occurredAt time.Time)
}
