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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/internal/analytics"
	"github.com/pagepulse/pagepulse/internal/event"
)

// EventRepository implements event.Repository and analytics.QueryRepository.
// The events table is append-only; nothing here updates or deletes rows.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert durably appends one event row
func (r *EventRepository) Insert(ctx context.Context, e *event.Event) error {
	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO events (
			id, tenant_id, event_type, url, referrer, device, ip_address,
			metadata, session_id, user_id, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.TenantID, e.EventType,
		nullString(e.URL), nullString(e.Referrer), nullString(e.Device), nullString(e.IPAddress),
		metadata, nullString(e.SessionID), nullString(e.UserID),
		e.OccurredAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// AggregateRange computes an ad hoc aggregate over raw events. from/to are
// inclusive UTC days; zero values leave that bound open.
func (r *EventRepository) AggregateRange(ctx context.Context, tenantID, eventType string, from, to time.Time) (*analytics.Aggregate, error) {
	where := "tenant_id = $1"
	args := []any{tenantID}

	if eventType != "" {
		args = append(args, eventType)
		where += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(" AND occurred_at < $%d::timestamptz + interval '1 day'", len(args))
	}

	agg := &analytics.Aggregate{DeviceData: map[string]int64{}}

	err := r.db.pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT user_id)
		FROM events
		WHERE `+where, args...).Scan(&agg.TotalCount, &agg.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}

	if agg.TotalCount == 0 {
		return agg, nil
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT COALESCE(device, 'unknown'), count(*)
		FROM events
		WHERE `+where+`
		GROUP BY 1
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var device string
		var count int64
		if err := rows.Scan(&device, &count); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", err)
		}
		agg.DeviceData[device] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return agg, nil
}

// UserStats gathers one user's activity within a tenant
func (r *EventRepository) UserStats(ctx context.Context, tenantID, userID string, recentLimit int) (*analytics.UserStats, error) {
	stats := &analytics.UserStats{
		UserID:     userID,
		DeviceData: map[string]int64{},
	}

	err := r.db.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(min(occurred_at), 'epoch'), COALESCE(max(occurred_at), 'epoch')
		FROM events
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&stats.TotalEvents, &stats.FirstSeen, &stats.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to count user events: %w", err)
	}

	if stats.TotalEvents == 0 {
		return nil, nil
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT COALESCE(device, 'unknown'), count(*)
		FROM events
		WHERE tenant_id = $1 AND user_id = $2
		GROUP BY 1
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user devices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var device string
		var count int64
		if err := rows.Scan(&device, &count); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", err)
		}
		stats.DeviceData[device] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	ipRows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT ip_address
		FROM events
		WHERE tenant_id = $1 AND user_id = $2 AND ip_address IS NOT NULL
		ORDER BY ip_address
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ips: %w", err)
	}
	defer ipRows.Close()
	for ipRows.Next() {
		var ip string
		if err := ipRows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan ip: %w", err)
		}
		stats.IPAddresses = append(stats.IPAddresses, ip)
	}
	if err := ipRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	recent, err := r.queryEvents(ctx, `
		SELECT id, tenant_id, event_type, url, referrer, device, ip_address,
		       metadata, session_id, user_id, occurred_at, created_at
		FROM events
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`, tenantID, userID, recentLimit)
	if err != nil {
		return nil, err
	}
	stats.RecentEvents = recent

	return stats, nil
}

// RecentEvents lists the tenant's most recent events, newest first
func (r *EventRepository) RecentEvents(ctx context.Context, tenantID string, limit int) ([]*event.Event, error) {
	return r.queryEvents(ctx, `
		SELECT id, tenant_id, event_type, url, referrer, device, ip_address,
		       metadata, session_id, user_id, occurred_at, created_at
		FROM events
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, tenantID, limit)
}

// CountsByType lists per-type totals ordered by count descending
func (r *EventRepository) CountsByType(ctx context.Context, tenantID string, from, to time.Time) ([]analytics.TypeCount, error) {
	where := "tenant_id = $1"
	args := []any{tenantID}

	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(" AND occurred_at < $%d::timestamptz + interval '1 day'", len(args))
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT event_type, count(*), count(DISTINCT user_id)
		FROM events
		WHERE `+where+`
		GROUP BY event_type
		ORDER BY count(*) DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer rows.Close()

	var counts []analytics.TypeCount
	for rows.Next() {
		var tc analytics.TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count, &tc.UniqueUsers); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var e event.Event
	var url, referrer, device, ipAddress, sessionID, userID sql.NullString
	var metadata []byte

	err := row.Scan(
		&e.ID, &e.TenantID, &e.EventType, &url, &referrer, &device, &ipAddress,
		&metadata, &sessionID, &userID, &e.OccurredAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	e.URL = url.String
	e.Referrer = referrer.String
	e.Device = device.String
	e.IPAddress = ipAddress.String
	e.SessionID = sessionID.String
	e.UserID = userID.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &e, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
