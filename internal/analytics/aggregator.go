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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/internal/id"
	"github.com/pagepulse/pagepulse/internal/observability/logger"
	"github.com/pagepulse/pagepulse/internal/observability/metrics"
)

// recomputeTimeout bounds one summary recomputation. A timed-out pass is
// harmless: the summary stays stale until the next event for its key.
const recomputeTimeout = 30 * time.Second

type job struct {
	tenantID  string
	eventType string
	day       time.Time
}

// Aggregator maintains summary rows from a bounded background queue.
// Recomputation is always a full scan of the key's events, never an
// incremental delta: racing recomputes for the same key may duplicate work
// but each writes a complete, correct aggregate, so the last writer wins and
// no update is ever lost.
type Aggregator struct {
	repo        SummaryRepository
	instruments *metrics.Instruments
	jobs        chan job
	workers     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAggregator creates a new aggregator with a bounded job queue
func NewAggregator(repo SummaryRepository, instruments *metrics.Instruments, queueSize, workers int) *Aggregator {
	return &Aggregator{
		repo:        repo,
		instruments: instruments,
		jobs:        make(chan job, queueSize),
		workers:     workers,
	}
}

// Start launches the worker pool
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
}

// Stop signals the workers and waits for in-flight recomputes to finish.
// Queued jobs are abandoned; the affected summaries self-heal on the next
// event for their key.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// Schedule enqueues a recompute for the summary key covering occurredAt. It
// never blocks: when the queue is full the job is dropped with a warning,
// relying on the next event for the key to trigger a fresh pass.
func (a *Aggregator) Schedule(tenantID, eventType string, occurredAt time.Time) {
	j := job{tenantID: tenantID, eventType: eventType, day: UTCDay(occurredAt)}
	select {
	case a.jobs <- j:
	default:
		a.instruments.AggregationDropped.Add(context.Background(), 1)
		slog.Warn("aggregation queue full, dropping recompute job",
			logger.TenantID(tenantID),
			logger.EventType(eventType),
			logger.SummaryDate(j.day.Format("2006-01-02")),
		)
	}
}

func (a *Aggregator) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-a.jobs:
			a.run(j)
		}
	}
}

// run executes one queued job. Failures are logged and swallowed; they must
// never propagate to the ingesting caller.
func (a *Aggregator) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
	defer cancel()

	if _, err := a.Recompute(ctx, j.tenantID, j.eventType, j.day); err != nil {
		a.instruments.AggregationFailures.Add(ctx, 1)
		slog.ErrorContext(ctx, "summary recomputation failed",
			logger.Error(err),
			logger.TenantID(j.tenantID),
			logger.EventType(j.eventType),
			logger.SummaryDate(j.day.Format("2006-01-02")),
		)
	}
}

// Recompute rebuilds the summary row for one key from scratch and upserts it.
// Idempotent: recomputing an unchanged key writes an identical row.
func (a *Aggregator) Recompute(ctx context.Context, tenantID, eventType string, day time.Time) (*Summary, error) {
	start := time.Now()
	day = UTCDay(day)

	agg, err := a.repo.AggregateKey(ctx, tenantID, eventType, day)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}

	s := &Summary{
		ID:          id.NewUUIDv7(),
		TenantID:    tenantID,
		EventType:   eventType,
		Date:        day,
		TotalCount:  agg.TotalCount,
		UniqueUsers: agg.UniqueUsers,
		DeviceData:  agg.DeviceData,
		UpdatedAt:   time.Now(),
	}

	if err := a.repo.Upsert(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}

	a.instruments.AggregationRuns.Add(ctx, 1)
	a.instruments.RecomputeDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	return s, nil
}

// RebuildAll recomputes every summary key present in the events table.
// Summaries are disposable; this restores the full cache after data surgery
// or a bug in a previous aggregation pass.
func (a *Aggregator) RebuildAll(ctx context.Context) (int, error) {
	keys, err := a.repo.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list summary keys: %w", err)
	}

	rebuilt := 0
	for _, k := range keys {
		if _, err := a.Recompute(ctx, k.TenantID, k.EventType, k.Date); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}
