// Copyright (c) 2026 John Earle
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

// Engagement Pipeline — Normalizer Service
//
// Entry point for the normalizer worker. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to Redis for duplicate suppression (optional)
//  3. Consumes raw provider envelopes from the inbound queue
//  4. Publishes canonical jobs to the simulator queue
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/engagement/internal/config"
	"github.com/bcem/engagement/internal/dedup"
	"github.com/bcem/engagement/internal/models"
	"github.com/bcem/engagement/internal/normalize"
	"github.com/bcem/engagement/internal/queue"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting engagement normalizer service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"worker_concurrency", cfg.WorkerConcurrency,
		"dedup_enabled", cfg.RedisURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Dedup Filter (optional) ---
	var filter normalize.DedupFilter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		filter = dedup.NewFilter(rdb, cfg.DedupTTL)
	} else {
		slog.Warn("REDIS_URL not set, duplicate suppression disabled")
	}

	publisher := queue.NewPublisher(cfg.AMQPURL, models.SimulatorQueue)
	defer publisher.Close()

	worker := normalize.NewWorker(publisher, filter)
	consumer := queue.NewConsumer(cfg.AMQPURL, models.InboundQueue, "normalizer", cfg.WorkerConcurrency)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	runConsumer(ctx, consumer, worker.Handle)

	slog.Info("normalizer service stopped")
}

// runConsumer keeps the consumer alive across broker hiccups, reconnecting
// with a fixed backoff until the context is cancelled.
func runConsumer(ctx context.Context, consumer *queue.Consumer, handle queue.HandlerFunc) {
	for {
		err := consumer.Run(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		slog.Error("consumer stopped, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
