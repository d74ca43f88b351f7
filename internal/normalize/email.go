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
	"fmt"
	"log/slog"
	"strings"

	"github.com/jhillyerd/enmime"
)

// ParsedEmail is the transient result of parsing raw RFC 5322 content.
// Empty MessageID/Subject mean the header was absent; nil HTML means no HTML
// body could be found.
type ParsedEmail struct {
	MessageID string
	Subject   string
	HTML      *string
}

// ParseRawEmail parses raw RFC 5322 content and extracts the Message-Id,
// Subject, and HTML body.
//
// HTML extraction handles direct text/html content, multipart trees with one
// or more text/html sub-parts (searched depth-first through nested multipart,
// joined in document order), and plain-text bodies that nonetheless contain
// HTML markup.
func ParseRawEmail(raw string) (ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		return ParsedEmail{}, fmt.Errorf("parse rfc5322 content: %w", err)
	}

	parsed := ParsedEmail{
		MessageID: stripAngleBrackets(env.GetHeader("Message-Id")),
		Subject:   env.GetHeader("Subject"),
		HTML:      extractHTML(env.Root),
	}

	slog.Info("raw email parsed",
		"message_id", parsed.MessageID,
		"subject", parsed.Subject,
		"has_html", parsed.HTML != nil,
	)

	return parsed, nil
}

// extractHTML walks the part tree depth-first, accumulating text/html parts
// in encounter order. A plain-text root that carries HTML markup is treated
// as HTML (some senders mislabel their content type).
func extractHTML(root *enmime.Part) *string {
	if root == nil {
		return nil
	}

	var parts []string
	collectHTMLParts(root, &parts)

	if len(parts) > 0 {
		if len(parts) > 1 {
			slog.Info("multiple html parts found", "count", len(parts))
		}
		joined := strings.Join(parts, "\n")
		return &joined
	}

	if mediaType(root.ContentType) == "text/plain" {
		body := string(root.Content)
		low := strings.ToLower(body)
		if strings.Contains(low, "<html") || strings.Contains(low, "<body") {
			slog.Warn("plain text body contains html markup, treating as html")
			return &body
		}
	}

	slog.Warn("no html body found", "content_type", root.ContentType)
	return nil
}

func collectHTMLParts(p *enmime.Part, out *[]string) {
	if p == nil {
		return
	}

	if mediaType(p.ContentType) == "text/html" {
		if body := string(p.Content); strings.TrimSpace(body) != "" {
			*out = append(*out, body)
		}
	}

	for child := p.FirstChild; child != nil; child = child.NextSibling {
		collectHTMLParts(child, out)
	}
}

// mediaType strips any ";charset=..." parameters from a Content-Type value.
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
