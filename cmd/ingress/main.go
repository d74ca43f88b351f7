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

// Engagement Pipeline — Ingress Service
//
// Entry point for the webhook ingress. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects a confirming publisher to the message broker
//  3. Serves the Mailgun and Cloudflare webhook endpoints
//  4. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcem/engagement/internal/config"
	"github.com/bcem/engagement/internal/models"
	"github.com/bcem/engagement/internal/queue"
	"github.com/bcem/engagement/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting engagement ingress service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"mailgun_signature_verification", cfg.MailgunSigningKey != "",
		"cloudflare_auth", cfg.CloudflareAuthToken != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := queue.NewPublisher(cfg.AMQPURL, models.InboundQueue)
	defer publisher.Close()

	handler := webhook.NewHandler(cfg, publisher)
	ready, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start ingress server", "error", err)
		os.Exit(1)
	}
	<-ready

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	slog.Info("ingress service stopped")
}
