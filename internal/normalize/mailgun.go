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
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/bcem/engagement/internal/models"
)

// fromMailgun builds a job from a Mailgun payload. Mailgun delivers the email
// body already extracted, so the transform only has to pick the HTML variant
// (body_html wins over stripped_html) and resolve the message id.
func fromMailgun(p *models.MailgunPayload) models.SimulatorJob {
	messageID := messageIDFromHeaders(p.MessageHeaders)
	if messageID == "" {
		messageID = fallbackID(p.Subject, p.Recipient)
	}

	var html *string
	switch {
	case p.BodyHTML != nil && *p.BodyHTML != "":
		html = p.BodyHTML
	case p.StrippedHTML != nil && *p.StrippedHTML != "":
		html = p.StrippedHTML
	}

	return models.SimulatorJob{
		MessageID: messageID,
		To:        p.Recipient,
		HTML:      html,
	}
}

// messageIDFromHeaders extracts the Message-Id from Mailgun's message-headers
// field, a JSON array of [name, value] pairs. Returns "" when the header is
// missing or the blob fails to parse — the caller falls back to a hash id.
func messageIDFromHeaders(headers *string) string {
	if headers == nil || *headers == "" {
		return ""
	}

	var pairs [][]string
	if err := json.Unmarshal([]byte(*headers), &pairs); err != nil {
		preview := *headers
		if len(preview) > 200 {
			preview = preview[:200]
		}
		slog.Warn("mailgun headers blob unparsable",
			"headers_preview", preview,
			"error", err,
		)
		return ""
	}

	for _, pair := range pairs {
		if len(pair) < 2 || !strings.EqualFold(pair[0], "Message-Id") {
			continue
		}
		if id := stripAngleBrackets(pair[1]); id != "" {
			return id
		}
	}

	slog.Warn("no Message-Id in mailgun headers")
	return ""
}
