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

// Command rebuild recomputes every persisted event summary from the raw
// event log. Safe to run while the server is up; the upserts are idempotent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pagepulse/pagepulse/internal/analytics"
	"github.com/pagepulse/pagepulse/internal/config"
	"github.com/pagepulse/pagepulse/internal/observability/logger"
	"github.com/pagepulse/pagepulse/internal/observability/metrics"
	"github.com/pagepulse/pagepulse/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx := context.Background()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	meter, err := metrics.New(ctx, metrics.Config{Enabled: false}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		slog.Error("failed to register instruments", logger.Error(err))
		os.Exit(1)
	}

	summaryRepo := postgres.NewSummaryRepository(db)
	aggregator := analytics.NewAggregator(summaryRepo, instruments, cfg.Aggregator.QueueSize, cfg.Aggregator.Workers)

	fmt.Println("Rebuilding event summaries...")
	n, err := aggregator.RebuildAll(ctx)
	if err != nil {
		slog.Error("rebuild failed", logger.Error(err))
		os.Exit(1)
	}
	fmt.Printf("Rebuilt %d summaries.\n", n)
}
