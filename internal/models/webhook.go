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

// Package models defines the wire types shared across the engagement pipeline.
//
// The inbound_webhooks queue carries InboundWebhook envelopes; the
// email_simulator queue carries SimulatorJob payloads. Both serialise to JSON
// and MUST stay compatible with the payloads the ingress service publishes.
package models

import (
	"encoding/json"
	"fmt"
)

// Queue names. Both queues are durable and declared idempotently by whichever
// side connects first.
const (
	// InboundQueue holds raw provider webhooks published by the ingress service.
	InboundQueue = "inbound_webhooks"
	// SimulatorQueue holds normalized jobs ready for engagement simulation.
	SimulatorQueue = "email_simulator"
)

// Provider identifies which email provider delivered a webhook.
type Provider string

const (
	ProviderMailgun    Provider = "mailgun"
	ProviderCloudflare Provider = "cloudflare"
)

// MailgunPayload is the raw Mailgun webhook form data, captured verbatim by
// the ingress service. Mailgun delivers the email body already extracted, so
// no RFC 5322 parsing is needed downstream.
type MailgunPayload struct {
	Recipient      string  `json:"recipient"`
	Sender         string  `json:"sender,omitempty"`
	Subject        string  `json:"subject,omitempty"`
	BodyHTML       *string `json:"body_html,omitempty"`
	BodyPlain      *string `json:"body_plain,omitempty"`
	StrippedHTML   *string `json:"stripped_html,omitempty"`
	MessageHeaders *string `json:"message_headers,omitempty"`
	From           string  `json:"from_field,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	Token          string  `json:"token,omitempty"`
}

// CloudflarePayload is the raw Cloudflare Email Worker payload. RawContent is
// the full RFC 5322 message (headers + body) and requires MIME parsing.
type CloudflarePayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Timestamp  string `json:"timestamp,omitempty"`
	RawContent string `json:"raw_content"`
}

// InboundWebhook is the provider-tagged envelope stored on the inbound queue.
// Exactly one variant is set. The closed set of variants keeps provider
// routing exhaustive at the normalization boundary.
type InboundWebhook struct {
	Mailgun    *MailgunPayload
	Cloudflare *CloudflarePayload
}

// Provider returns the tag of the populated variant.
func (w *InboundWebhook) Provider() Provider {
	if w.Mailgun != nil {
		return ProviderMailgun
	}
	return ProviderCloudflare
}

// mailgunWire and cloudflareWire flatten the provider tag next to the
// payload fields, matching the {"provider": "...", ...fields...} wire format.
type mailgunWire struct {
	Provider Provider `json:"provider"`
	MailgunPayload
}

type cloudflareWire struct {
	Provider Provider `json:"provider"`
	CloudflarePayload
}

// MarshalJSON serialises the populated variant with its provider tag inline.
func (w InboundWebhook) MarshalJSON() ([]byte, error) {
	switch {
	case w.Mailgun != nil:
		return json.Marshal(mailgunWire{Provider: ProviderMailgun, MailgunPayload: *w.Mailgun})
	case w.Cloudflare != nil:
		return json.Marshal(cloudflareWire{Provider: ProviderCloudflare, CloudflarePayload: *w.Cloudflare})
	default:
		return nil, fmt.Errorf("inbound webhook has no payload")
	}
}

// UnmarshalJSON routes on the "provider" tag. Unknown providers are an error:
// the consumer treats them as permanently malformed.
func (w *InboundWebhook) UnmarshalJSON(data []byte) error {
	var tag struct {
		Provider Provider `json:"provider"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decode provider tag: %w", err)
	}

	switch tag.Provider {
	case ProviderMailgun:
		var p MailgunPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode mailgun payload: %w", err)
		}
		*w = InboundWebhook{Mailgun: &p}
	case ProviderCloudflare:
		var p CloudflarePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode cloudflare payload: %w", err)
		}
		*w = InboundWebhook{Cloudflare: &p}
	default:
		return fmt.Errorf("unknown webhook provider %q", tag.Provider)
	}
	return nil
}

// SimulatorJob is the normalized, provider-agnostic unit of simulation work.
// MessageID and To are always non-empty on the queue; HTML is null when no
// body could be extracted.
type SimulatorJob struct {
	MessageID string  `json:"message_id"`
	To        string  `json:"to"`
	HTML      *string `json:"html"`
}
