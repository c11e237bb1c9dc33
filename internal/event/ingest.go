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

package event

import (
	"context"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/internal/id"
	"github.com/pagepulse/pagepulse/internal/observability/metrics"
)

// Ingestor persists events and triggers summary recomputation. Ingestion
// success is defined solely by the durability of the event row: the
// aggregation trigger is fire-and-forget and its outcome never reaches the
// caller.
type Ingestor struct {
	repo        Repository
	scheduler   Scheduler
	instruments *metrics.Instruments
}

// NewIngestor creates a new ingestor
func NewIngestor(repo Repository, scheduler Scheduler, instruments *metrics.Instruments) *Ingestor {
	return &Ingestor{
		repo:        repo,
		scheduler:   scheduler,
		instruments: instruments,
	}
}

// Ingest writes one immutable event for the resolved tenant. The event
// timestamp defaults to capture time and the IP address to the
// transport-observed origin when the payload omits them. After the write
// succeeds exactly one recompute pass is scheduled for the event's summary
// key.
func (ing *Ingestor) Ingest(ctx context.Context, tenantID string, p Payload, originIP string) (*Event, error) {
	now := time.Now()

	occurredAt := now
	if p.OccurredAt != nil {
		occurredAt = *p.OccurredAt
	}

	e := &Event{
		ID:         id.NewUUIDv7(),
		TenantID:   tenantID,
		EventType:  p.EventType,
		URL:        p.URL,
		Referrer:   p.Referrer,
		Device:     p.Device,
		IPAddress:  originIP,
		Metadata:   p.Metadata,
		SessionID:  p.SessionID,
		UserID:     p.UserID,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}

	if err := ing.repo.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	ing.instruments.EventsIngested.Add(ctx, 1)
	ing.scheduler.Schedule(e.TenantID, e.EventType, e.OccurredAt)

	return e, nil
}
