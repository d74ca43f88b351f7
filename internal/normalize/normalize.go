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

// Package normalize converts provider-tagged webhook envelopes into canonical
// simulation jobs. Transforms are pure: they perform no I/O and degrade to an
// HTML-less job rather than failing when raw content cannot be parsed.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/engagement/internal/models"
)

// Normalize routes the envelope to its provider-specific transform. The only
// errors are structural: an empty envelope or a missing recipient, both of
// which mark the message permanently malformed.
func Normalize(w models.InboundWebhook) (models.SimulatorJob, error) {
	var job models.SimulatorJob
	switch {
	case w.Mailgun != nil:
		job = fromMailgun(w.Mailgun)
	case w.Cloudflare != nil:
		job = fromCloudflare(w.Cloudflare)
	default:
		return models.SimulatorJob{}, fmt.Errorf("envelope has no provider payload")
	}

	if job.To == "" {
		return models.SimulatorJob{}, fmt.Errorf("%s envelope has no recipient", w.Provider())
	}

	slog.Info("envelope normalized",
		"provider", string(w.Provider()),
		"message_id", job.MessageID,
		"to", job.To,
		"has_html", job.HTML != nil,
	)

	return job, nil
}

// fallbackID derives a deterministic message id from subject and recipient
// when the provider supplied none. Identical pairs always hash to the same
// id, so the dedup filter still catches provider retries.
func fallbackID(subject, recipient string) string {
	sum := sha256.Sum256([]byte(subject + "-" + recipient))
	id := hex.EncodeToString(sum[:])

	slog.Info("fallback message id generated",
		"subject", subject,
		"recipient", recipient,
		"message_id", id,
	)

	return id
}

// stripAngleBrackets cleans a Message-Id header value of surrounding
// whitespace and angle brackets.
func stripAngleBrackets(id string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(id), "<>"))
}
