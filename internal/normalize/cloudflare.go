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

package normalize

import (
	"log/slog"

	"github.com/bcem/engagement/internal/models"
)

// fromCloudflare builds a job from a Cloudflare Email Worker payload, whose
// raw_content is a full RFC 5322 message. Parse failure is non-fatal: the job
// degrades to an HTML-less one with a fallback id rather than being dropped.
func fromCloudflare(p *models.CloudflarePayload) models.SimulatorJob {
	parsed, err := ParseRawEmail(p.RawContent)
	if err != nil {
		slog.Warn("cloudflare raw content unparsable, degrading",
			"to", p.To,
			"raw_content_length", len(p.RawContent),
			"error", err,
		)
		parsed = ParsedEmail{Subject: p.Subject}
	}

	messageID := parsed.MessageID
	if messageID == "" {
		messageID = fallbackID(p.Subject, p.To)
	}

	return models.SimulatorJob{
		MessageID: messageID,
		To:        p.To,
		HTML:      parsed.HTML,
	}
}
