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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Instruments are registered on the global meter provider; exporters are
	// configured by the deployment, not here.
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// Instruments holds the instruments recorded by the ingest and aggregation
// paths. A zero value is unusable; construct via NewInstruments.
type Instruments struct {
	EventsIngested      metric.Int64Counter
	AggregationRuns     metric.Int64Counter
	AggregationFailures metric.Int64Counter
	AggregationDropped  metric.Int64Counter
	RecomputeDuration   metric.Float64Histogram
}

// NewInstruments registers the service's instruments on the meter
func NewInstruments(m *Meter) (*Instruments, error) {
	ingested, err := m.meter.Int64Counter(
		"pagepulse.events.ingested",
		metric.WithDescription("Number of events durably written"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	runs, err := m.meter.Int64Counter(
		"pagepulse.aggregation.runs",
		metric.WithDescription("Number of summary recomputations executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	failures, err := m.meter.Int64Counter(
		"pagepulse.aggregation.failures",
		metric.WithDescription("Number of summary recomputations that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	dropped, err := m.meter.Int64Counter(
		"pagepulse.aggregation.dropped",
		metric.WithDescription("Number of recompute jobs dropped because the queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	duration, err := m.meter.Float64Histogram(
		"pagepulse.aggregation.duration",
		metric.WithDescription("Summary recomputation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &Instruments{
		EventsIngested:      ingested,
		AggregationRuns:     runs,
		AggregationFailures: failures,
		AggregationDropped:  dropped,
		RecomputeDuration:   duration,
	}, nil
}
