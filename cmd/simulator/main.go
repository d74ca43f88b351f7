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

// Engagement Pipeline — Simulator Service
//
// Entry point for the simulation worker. It:
//  1. Loads configuration from config.yaml / environment
//  2. Builds a shared HTTP client for simulated opens and clicks
//  3. Consumes canonical jobs from the simulator queue
//  4. Runs the engagement simulation for each job
//  5. Handles graceful shutdown on SIGTERM/SIGINT, letting in-flight
//     simulations finish
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/engagement/internal/config"
	"github.com/bcem/engagement/internal/models"
	"github.com/bcem/engagement/internal/queue"
	"github.com/bcem/engagement/internal/simulate"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting engagement simulator service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"worker_concurrency", cfg.WorkerConcurrency,
		"open_probability", cfg.OpenProbability,
		"click_probability", cfg.ClickProbability,
		"max_clicks", cfg.MaxClicks,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connection pool sized for concurrent jobs fanning out image fetches.
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.WorkerConcurrency * 2,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	engine := simulate.NewEngine(client, simulate.Options{
		OpenProbability:  cfg.OpenProbability,
		ClickProbability: cfg.ClickProbability,
		MaxClicks:        cfg.MaxClicks,
		OpenDelayMin:     cfg.OpenDelayMin,
		OpenDelayMax:     cfg.OpenDelayMax,
		ClickDelayMin:    cfg.ClickDelayMin,
		ClickDelayMax:    cfg.ClickDelayMax,
		RequestTimeout:   cfg.RequestTimeout,
		AllowDomains:     cfg.AllowDomains,
		DenyDomains:      cfg.DenyDomains,
		UserAgentPool:    cfg.UserAgentPool,
	})

	worker := simulate.NewWorker(engine)
	consumer := queue.NewConsumer(cfg.AMQPURL, models.SimulatorQueue, "simulator", cfg.WorkerConcurrency)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	runConsumer(ctx, consumer, worker.Handle)

	slog.Info("simulator service stopped")
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
