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

// Package webhook receives inbound delivery notifications from email
// providers. The handlers stay thin on purpose: authenticate, wrap the raw
// payload in a provider envelope, enqueue it, and return. All parsing and
// normalization happens downstream.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/engagement/internal/config"
	"github.com/bcem/engagement/internal/models"
)

// EnvelopePublisher forwards provider envelopes to the inbound queue.
type EnvelopePublisher interface {
	Publish(ctx context.Context, queueName, messageID string, v any) error
}

// Handler accepts provider webhooks and enqueues raw envelopes.
type Handler struct {
	cfg       *config.Config
	publisher EnvelopePublisher
}

// NewHandler creates the ingress webhook handler.
func NewHandler(cfg *config.Config, publisher EnvelopePublisher) *Handler {
	return &Handler{cfg: cfg, publisher: publisher}
}

type webhookResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeMailgun handles Mailgun's form-encoded delivery webhook.
//
// When a signing key is configured, the request's HMAC signature is verified
// and stale timestamps are rejected. When a receiving domain is configured,
// recipients outside it are rejected with 400.
func (h *Handler) ServeMailgun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, webhookResponse{Status: "method_not_allowed"})
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("mailgun form parse failed", "error", err)
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "bad_request"})
		return
	}

	form := r.PostForm
	recipient := form.Get("recipient")
	signature := form.Get("signature")
	timestamp := form.Get("timestamp")
	token := form.Get("token")

	slog.Info("mailgun webhook received",
		"recipient", recipient,
		"has_body_html", form.Get("body-html") != "",
		"body_html_length", len(form.Get("body-html")),
		"has_signature", signature != "",
	)

	if key := strings.TrimSpace(h.cfg.MailgunSigningKey); key != "" {
		if !VerifyMailgunSignature(key, timestamp, token, signature, h.cfg.MailgunSignatureMaxAge) {
			slog.Warn("mailgun signature invalid", "recipient", recipient)
			writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "unauthorized"})
			return
		}
	}

	if h.cfg.MailgunDomain != "" && !strings.HasSuffix(recipient, "@"+h.cfg.MailgunDomain) {
		slog.Warn("mailgun recipient outside receiving domain",
			"recipient", recipient,
			"expected_domain", h.cfg.MailgunDomain,
		)
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "invalid_domain"})
		return
	}

	envelope := models.InboundWebhook{
		Mailgun: &models.MailgunPayload{
			Recipient:      recipient,
			Sender:         form.Get("sender"),
			Subject:        form.Get("subject"),
			BodyHTML:       optionalField(form.Get("body-html")),
			BodyPlain:      optionalField(form.Get("body-plain")),
			StrippedHTML:   optionalField(form.Get("stripped-html")),
			MessageHeaders: optionalField(form.Get("message-headers")),
			From:           form.Get("from"),
			Timestamp:      timestamp,
			Token:          token,
		},
	}

	// The canonical message id is only resolved downstream, so envelopes get
	// a fresh delivery id for broker-level tracing.
	deliveryID := uuid.NewString()
	if err := h.publisher.Publish(r.Context(), models.InboundQueue, deliveryID, envelope); err != nil {
		slog.Error("mailgun envelope publish failed", "recipient", recipient, "error", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error"})
		return
	}

	slog.Info("mailgun envelope enqueued", "recipient", recipient, "delivery_id", deliveryID)
	writeJSON(w, http.StatusOK, webhookResponse{Status: "enqueued", MessageID: recipient})
}

// cloudflareRequest is the JSON body a Cloudflare Email Worker posts.
type cloudflareRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Timestamp  string `json:"timestamp"`
	RawContent string `json:"raw_content"`
}

// ServeCloudflare handles the Cloudflare Email Worker webhook, authenticated
// by a shared token in the X-Custom-Auth header. An unset token means auth is
// disabled, which is logged on every request.
func (h *Handler) ServeCloudflare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, webhookResponse{Status: "method_not_allowed"})
		return
	}

	var payload cloudflareRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("cloudflare body parse failed", "error", err)
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "bad_request"})
		return
	}

	slog.Info("cloudflare webhook received",
		"from", payload.From,
		"to", payload.To,
		"subject", payload.Subject,
		"raw_content_length", len(payload.RawContent),
	)

	if expected := h.cfg.CloudflareAuthToken; expected != "" {
		provided := r.Header.Get("X-Custom-Auth")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			slog.Warn("cloudflare auth rejected", "to", payload.To, "token_present", provided != "")
			writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "unauthorized"})
			return
		}
	} else {
		slog.Warn("cloudflare auth not configured")
	}

	envelope := models.InboundWebhook{
		Cloudflare: &models.CloudflarePayload{
			From:       payload.From,
			To:         payload.To,
			Subject:    payload.Subject,
			Timestamp:  payload.Timestamp,
			RawContent: payload.RawContent,
		},
	}

	deliveryID := uuid.NewString()
	if err := h.publisher.Publish(r.Context(), models.InboundQueue, deliveryID, envelope); err != nil {
		slog.Error("cloudflare envelope publish failed", "to", payload.To, "error", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error"})
		return
	}

	slog.Info("cloudflare envelope enqueued", "to", payload.To, "delivery_id", deliveryID)
	writeJSON(w, http.StatusOK, webhookResponse{Status: "enqueued", MessageID: payload.To})
}

func optionalField(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Serve starts the ingress HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before starting
// to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.ServeHealth)
	mux.HandleFunc("/webhook/mailgun", handler.ServeMailgun)
	mux.HandleFunc("/webhook/cloudflare", handler.ServeCloudflare)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind ingress port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("ingress server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("ingress server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("ingress server error", "error", err)
		}
	}()

	return ready, nil
}
