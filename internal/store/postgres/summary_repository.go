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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pagepulse/pagepulse/internal/analytics"
)

// SummaryRepository implements analytics.SummaryRepository
type SummaryRepository struct {
	db *DB
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// AggregateKey computes the full aggregate for one summary key by scanning
// the matching events
func (r *SummaryRepository) AggregateKey(ctx context.Context, tenantID, eventType string, day time.Time) (*analytics.Aggregate, error) {
	agg := &analytics.Aggregate{DeviceData: map[string]int64{}}

	err := r.db.pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT user_id)
		FROM events
		WHERE tenant_id = $1 AND event_type = $2
		  AND occurred_at >= $3 AND occurred_at < $3::timestamptz + interval '1 day'
	`, tenantID, eventType, day).Scan(&agg.TotalCount, &agg.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate key: %w", err)
	}

	if agg.TotalCount == 0 {
		return agg, nil
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT COALESCE(device, 'unknown'), count(*)
		FROM events
		WHERE tenant_id = $1 AND event_type = $2
		  AND occurred_at >= $3 AND occurred_at < $3::timestamptz + interval '1 day'
		GROUP BY 1
	`, tenantID, eventType, day)
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

// Upsert inserts or fully overwrites the summary row for its key. The
// ON CONFLICT clause rides the key's uniqueness constraint, so concurrent
// first-recomputes cannot create duplicate rows.
func (r *SummaryRepository) Upsert(ctx context.Context, s *analytics.Summary) error {
	deviceData, err := json.Marshal(s.DeviceData)
	if err != nil {
		return fmt.Errorf("failed to marshal device data: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO event_summaries (
			id, tenant_id, event_type, date, total_count, unique_users, device_data, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, event_type, date) DO UPDATE SET
			total_count = EXCLUDED.total_count,
			unique_users = EXCLUDED.unique_users,
			device_data = EXCLUDED.device_data,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.TenantID, s.EventType, s.Date, s.TotalCount, s.UniqueUsers, deviceData, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	return nil
}

// GetByKey reads one summary row; a missing row is (nil, nil)
func (r *SummaryRepository) GetByKey(ctx context.Context, tenantID, eventType string, day time.Time) (*analytics.Summary, error) {
	var s analytics.Summary
	var deviceData []byte

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, event_type, date, total_count, unique_users, device_data, updated_at
		FROM event_summaries
		WHERE tenant_id = $1 AND event_type = $2 AND date = $3
	`, tenantID, eventType, day).Scan(
		&s.ID, &s.TenantID, &s.EventType, &s.Date,
		&s.TotalCount, &s.UniqueUsers, &deviceData, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	if err := json.Unmarshal(deviceData, &s.DeviceData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device data: %w", err)
	}

	return &s, nil
}

// ListKeys enumerates every distinct summary key present in the events table
func (r *SummaryRepository) ListKeys(ctx context.Context) ([]analytics.SummaryKey, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT tenant_id, event_type, (occurred_at AT TIME ZONE 'UTC')::date
		FROM events
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list summary keys: %w", err)
	}
	defer rows.Close()

	var keys []analytics.SummaryKey
	for rows.Next() {
		var k analytics.SummaryKey
		if err := rows.Scan(&k.TenantID, &k.EventType, &k.Date); err != nil {
			return nil, fmt.Errorf("failed to scan summary key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return keys, nil
}
