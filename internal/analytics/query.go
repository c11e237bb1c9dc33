package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/internal/event"
)

// Recent-event bounds. Limits outside [1, maxRecentEvents] are clamped.
const (
	defaultRecentEvents = 20
	maxRecentEvents     = 100
	userRecentEvents    = 10
)

// QueryService serves the read-side APIs over events and summaries. Absent
// results are (nil, nil); the boundary maps them to not-found responses.
type QueryService struct {
	summaries SummaryRepository
	queries   QueryRepository
}

// NewQueryService creates a new query service
func NewQueryService(summaries SummaryRepository, queries QueryRepository) *QueryService {
	return &QueryService{
		summaries: summaries,
		queries:   queries,
	}
}

// Summary returns the aggregate for the given filters. A single-type query
// covering exactly one UTC day is answered from the summary row when one
// exists; everything else aggregates ad hoc from raw events. Summary rows are
// an optimization for the common single-type/day case, not a universal index.
func (q *QueryService) Summary(ctx context.Context, tenantID, eventType string, from, to time.Time) (*Aggregate, error) {
	if eventType != "" && coversSingleDay(from, to) {
		s, err := q.summaries.GetByKey(ctx, tenantID, eventType, UTCDay(from))
		if err != nil {
			return nil, fmt.Errorf("failed to read summary: %w", err)
		}
		if s != nil {
			return &Aggregate{
				TotalCount:  s.TotalCount,
				UniqueUsers: s.UniqueUsers,
				DeviceData:  s.DeviceData,
			}, nil
		}
		// No materialized row yet; fall through to the raw events.
	}

	agg, err := q.queries.AggregateRange(ctx, tenantID, eventType, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	if agg == nil || agg.TotalCount == 0 {
		return nil, nil
	}
	return agg, nil
}

// UserStats returns one user's activity within the tenant, or (nil, nil) when
// the user has no events.
func (q *QueryService) UserStats(ctx context.Context, tenantID, userID string) (*UserStats, error) {
	stats, err := q.queries.UserStats(ctx, tenantID, userID, userRecentEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user stats: %w", err)
	}
	return stats, nil
}

// RecentEvents lists the tenant's most recent events, newest first. The
// result is a finite snapshot, not a cursor.
func (q *QueryService) RecentEvents(ctx context.Context, tenantID string, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = defaultRecentEvents
	}
	if limit > maxRecentEvents {
		limit = maxRecentEvents
	}
	return q.queries.RecentEvents(ctx, tenantID, limit)
}

// CountsByType lists per-type event counts and unique users, highest count
// first.
func (q *QueryService) CountsByType(ctx context.Context, tenantID string, from, to time.Time) ([]TypeCount, error) {
	return q.queries.CountsByType(ctx, tenantID, from, to)
}

// coversSingleDay reports whether [from, to] falls within one UTC day, with
// both bounds set.
func coversSingleDay(from, to time.Time) bool {
	if from.IsZero() || to.IsZero() {
		return false
	}
	return UTCDay(from).Equal(UTCDay(to))
}
