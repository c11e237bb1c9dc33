// Copyright 2026 The PagePulse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analytics

import (
	"context"
	"time"

	"github.com/pagepulse/pagepulse/internal/event"
)

// Summary is the materialized daily aggregate for one (tenant, event type,
// UTC day) key. It is a rebuildable cache over the events table, never the
// source of truth: any row can be discarded and recomputed at will.
type Summary struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	EventType   string           `json:"event_type"`
	Date        time.Time        `json:"date"`
	TotalCount  int64            `json:"total_count"`
	UniqueUsers int64            `json:"unique_users"`
	DeviceData  map[string]int64 `json:"device_data"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Aggregate holds the computed counts for a summary key or an ad hoc query.
type Aggregate struct {
	TotalCount  int64            `json:"total_count"`
	UniqueUsers int64            `json:"unique_users"`
	DeviceData  map[string]int64 `json:"device_data"`
}

// SummaryKey identifies one summary row.
type SummaryKey struct {
	TenantID  string
	EventType string
	Date      time.Time
}

// TypeCount is one row of the counts-by-type listing.
type TypeCount struct {
	EventType   string `json:"event_type"`
	Count       int64  `json:"count"`
	UniqueUsers int64  `json:"unique_users"`
}

// UserStats describes one user's activity within a tenant.
type UserStats struct {
	UserID       string           `json:"user_id"`
	TotalEvents  int64            `json:"total_events"`
	DeviceData   map[string]int64 `json:"device_data"`
	FirstSeen    time.Time        `json:"first_seen"`
	LastSeen     time.Time        `json:"last_seen"`
	IPAddresses  []string         `json:"ip_addresses"`
	RecentEvents []*event.Event   `json:"recent_events"`
}

// SummaryRepository is the write-side storage contract of the aggregator.
type SummaryRepository interface {
	// AggregateKey computes the full aggregate for one summary key by
	// scanning the matching events: total count, distinct non-null users,
	// device breakdown with missing devices under the "unknown" bucket.
	AggregateKey(ctx context.Context, tenantID, eventType string, day time.Time) (*Aggregate, error)

	// Upsert inserts the summary row or overwrites all aggregate fields of
	// the existing row for its (tenant, event type, date) key. The insert-or-
	// replace must be atomic on the key's uniqueness constraint.
	Upsert(ctx context.Context, s *Summary) error

	// GetByKey reads one summary row; a missing row is (nil, nil).
	GetByKey(ctx context.Context, tenantID, eventType string, day time.Time) (*Summary, error)

	// ListKeys enumerates every distinct summary key present in the events
	// table, for full rebuilds.
	ListKeys(ctx context.Context) ([]SummaryKey, error)
}

// QueryRepository is the read-side storage contract of the query service.
type QueryRepository interface {
	// AggregateRange computes an ad hoc aggregate over raw events. eventType
	// may be empty (all types); zero from/to leave that bound open.
	AggregateRange(ctx context.Context, tenantID, eventType string, from, to time.Time) (*Aggregate, error)

	// UserStats gathers one user's totals, device breakdown, first/last seen,
	// distinct IPs and the recentLimit most recent events. A user with no
	// events is (nil, nil).
	UserStats(ctx context.Context, tenantID, userID string, recentLimit int) (*UserStats, error)

	// RecentEvents lists the tenant's most recent events, newest first.
	RecentEvents(ctx context.Context, tenantID string, limit int) ([]*event.Event, error)

	// CountsByType lists per-type totals ordered by count descending.
	CountsByType(ctx context.Context, tenantID string, from, to time.Time) ([]TypeCount, error)
}

// UTCDay truncates a timestamp to its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
