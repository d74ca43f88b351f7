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

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bcem/engagement/internal/config"
	"github.com/bcem/engagement/internal/models"
)

type capturePublisher struct {
	err       error
	envelopes []models.InboundWebhook
	queues    []string
}

func (c *capturePublisher) Publish(ctx context.Context, queueName, messageID string, v any) error {
	if c.err != nil {
		return c.err
	}
	c.queues = append(c.queues, queueName)
	c.envelopes = append(c.envelopes, v.(models.InboundWebhook))
	return nil
}

func signMailgun(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func postForm(handler http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

// TestServeMailgun_Enqueues verifies the happy path wraps the form in a
// mailgun envelope on the inbound queue.
func TestServeMailgun_Enqueues(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHandler(&config.Config{}, pub)

	form := url.Values{}
	form.Set("recipient", "user@example.com")
	form.Set("sender", "mailer@shop.example.com")
	form.Set("subject", "Deal inside")
	form.Set("body-html", "<html><body>deal</body></html>")

	rr := postForm(h.ServeMailgun, "/webhook/mailgun", form)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body.String())
	}
	if len(pub.envelopes) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(pub.envelopes))
	}
	if pub.queues[0] != models.InboundQueue {
		t.Errorf("queue = %q, want %q", pub.queues[0], models.InboundQueue)
	}

	env := pub.envelopes[0]
	if env.Mailgun == nil {
		t.Fatal("expected mailgun variant")
	}
	if env.Mailgun.Recipient != "user@example.com" {
		t.Errorf("recipient = %q", env.Mailgun.Recipient)
	}
	if env.Mailgun.BodyHTML == nil || *env.Mailgun.BodyHTML != "<html><body>deal</body></html>" {
		t.Errorf("body html = %v", env.Mailgun.BodyHTML)
	}
	if env.Mailgun.BodyPlain != nil {
		t.Errorf("body plain = %q, want nil for absent field", *env.Mailgun.BodyPlain)
	}
}

// TestServeMailgun_SignatureVerification verifies the HMAC gate when a
// signing key is configured.
func TestServeMailgun_SignatureVerification(t *testing.T) {
	const key = "test-signing-key"
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	tests := []struct {
		name       string
		timestamp  string
		token      string
		signature  string
		wantStatus int
	}{
		{
			name:       "valid",
			timestamp:  timestamp,
			token:      "tok-1",
			signature:  signMailgun(key, timestamp, "tok-1"),
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong signature",
			timestamp:  timestamp,
			token:      "tok-1",
			signature:  "deadbeef",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing fields",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "stale timestamp",
			timestamp:  "946684800",
			token:      "tok-1",
			signature:  signMailgun(key, "946684800", "tok-1"),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			h := NewHandler(&config.Config{
				MailgunSigningKey:      key,
				MailgunSignatureMaxAge: 5 * time.Minute,
			}, pub)

			form := url.Values{}
			form.Set("recipient", "user@example.com")
			form.Set("timestamp", tt.timestamp)
			form.Set("token", tt.token)
			form.Set("signature", tt.signature)

			rr := postForm(h.ServeMailgun, "/webhook/mailgun", form)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			wantPublished := 0
			if tt.wantStatus == http.StatusOK {
				wantPublished = 1
			}
			if len(pub.envelopes) != wantPublished {
				t.Errorf("published %d envelopes, want %d", len(pub.envelopes), wantPublished)
			}
		})
	}
}

// TestServeMailgun_DomainCheck verifies recipients outside the configured
// receiving domain are rejected.
func TestServeMailgun_DomainCheck(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHandler(&config.Config{MailgunDomain: "mail.example.com"}, pub)

	form := url.Values{}
	form.Set("recipient", "user@other.example.org")

	rr := postForm(h.ServeMailgun, "/webhook/mailgun", form)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	form.Set("recipient", "user@mail.example.com")
	rr = postForm(h.ServeMailgun, "/webhook/mailgun", form)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// TestServeMailgun_PublishFailure verifies broker failures surface as 500 so
// the provider retries.
func TestServeMailgun_PublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	h := NewHandler(&config.Config{}, pub)

	form := url.Values{}
	form.Set("recipient", "user@example.com")

	rr := postForm(h.ServeMailgun, "/webhook/mailgun", form)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

// TestServeCloudflare_Auth verifies the shared-token header gate.
func TestServeCloudflare_Auth(t *testing.T) {
	body := `{"from":"a@b.com","to":"user@example.com","subject":"s","raw_content":"From: a@b.com\r\n\r\nhi"}`

	tests := []struct {
		name       string
		configured string
		provided   string
		wantStatus int
	}{
		{name: "valid token", configured: "secret", provided: "secret", wantStatus: http.StatusOK},
		{name: "wrong token", configured: "secret", provided: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing token", configured: "secret", wantStatus: http.StatusUnauthorized},
		{name: "auth disabled", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			h := NewHandler(&config.Config{CloudflareAuthToken: tt.configured}, pub)

			req := httptest.NewRequest(http.MethodPost, "/webhook/cloudflare", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.provided != "" {
				req.Header.Set("X-Custom-Auth", tt.provided)
			}
			rr := httptest.NewRecorder()
			h.ServeCloudflare(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

// TestServeCloudflare_Enqueues verifies the payload lands on the inbound
// queue as a cloudflare envelope.
func TestServeCloudflare_Enqueues(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHandler(&config.Config{}, pub)

	body := `{"from":"a@b.com","to":"user@example.com","subject":"s","raw_content":"From: a@b.com\r\n\r\nhi"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/cloudflare", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeCloudflare(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(pub.envelopes) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(pub.envelopes))
	}
	env := pub.envelopes[0]
	if env.Cloudflare == nil {
		t.Fatal("expected cloudflare variant")
	}
	if env.Cloudflare.To != "user@example.com" {
		t.Errorf("to = %q", env.Cloudflare.To)
	}
}

// TestServeCloudflare_BadJSON verifies malformed bodies get 400.
func TestServeCloudflare_BadJSON(t *testing.T) {
	h := NewHandler(&config.Config{}, &capturePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/cloudflare", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	h.ServeCloudflare(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

// TestMethodNotAllowed verifies non-POST requests are rejected on both
// endpoints.
func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(&config.Config{}, &capturePublisher{})

	for _, serve := range []http.HandlerFunc{h.ServeMailgun, h.ServeCloudflare} {
		req := httptest.NewRequest(http.MethodGet, "/webhook/x", nil)
		rr := httptest.NewRecorder()
		serve(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rr.Code)
		}
	}
}
