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

package models

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestInboundWebhookRoundTrip verifies the provider tag routes decoding to
// the right variant.
func TestInboundWebhookRoundTrip(t *testing.T) {
	html := "<html><body>hi</body></html>"
	in := InboundWebhook{
		Mailgun: &MailgunPayload{
			Recipient: "user+tag@example.com",
			Subject:   "Welcome",
			BodyHTML:  &html,
		},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"provider":"mailgun"`) {
		t.Errorf("wire form missing provider tag: %s", data)
	}

	var out InboundWebhook
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Mailgun == nil || out.Cloudflare != nil {
		t.Fatal("expected mailgun variant")
	}
	if out.Mailgun.Recipient != "user+tag@example.com" {
		t.Errorf("recipient = %q", out.Mailgun.Recipient)
	}
	if out.Provider() != ProviderMailgun {
		t.Errorf("provider = %q, want mailgun", out.Provider())
	}
}

// TestInboundWebhookCloudflare verifies the cloudflare variant decodes.
func TestInboundWebhookCloudflare(t *testing.T) {
	wire := `{"provider":"cloudflare","from":"a@b.com","to":"c@d.com","subject":"s","raw_content":"From: a@b.com\r\n\r\nbody"}`

	var out InboundWebhook
	if err := json.Unmarshal([]byte(wire), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Cloudflare == nil {
		t.Fatal("expected cloudflare variant")
	}
	if out.Cloudflare.To != "c@d.com" {
		t.Errorf("to = %q", out.Cloudflare.To)
	}
}

// TestInboundWebhookUnknownProvider verifies unknown tags are rejected so the
// consumer can drop them as permanently malformed.
func TestInboundWebhookUnknownProvider(t *testing.T) {
	var out InboundWebhook
	if err := json.Unmarshal([]byte(`{"provider":"sendgrid","to":"x@y.com"}`), &out); err == nil {
		t.Error("expected error for unknown provider, got none")
	}
}

// TestInboundWebhookEmptyEnvelope verifies an empty envelope cannot be
// serialised onto the queue.
func TestInboundWebhookEmptyEnvelope(t *testing.T) {
	if _, err := json.Marshal(InboundWebhook{}); err == nil {
		t.Error("expected error for empty envelope, got none")
	}
}

// TestSimulatorJobNullHTML verifies html serialises as an explicit null when
// no body was extracted.
func TestSimulatorJobNullHTML(t *testing.T) {
	data, err := json.Marshal(SimulatorJob{MessageID: "m1", To: "a@b.com"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"html":null`) {
		t.Errorf("wire form = %s, want explicit null html", data)
	}
}
