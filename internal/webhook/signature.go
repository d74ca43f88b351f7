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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"
)

// VerifyMailgunSignature checks the HMAC-SHA256 signature Mailgun attaches
// to webhook requests: hex(HMAC-SHA256(signingKey, timestamp+token)).
//
// Timestamps further than maxAge from the current time are rejected to block
// replayed requests. The comparison is constant-time.
func VerifyMailgunSignature(signingKey, timestamp, token, signature string, maxAge time.Duration) bool {
	if signingKey == "" || timestamp == "" || token == "" || signature == "" {
		slog.Warn("mailgun signature fields missing",
			"has_timestamp", timestamp != "",
			"has_token", token != "",
			"has_signature", signature != "",
		)
		return false
	}

	webhookTime, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		slog.Warn("mailgun signature timestamp unparsable", "timestamp", timestamp)
		return false
	}

	age := time.Since(time.Unix(webhookTime, 0))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		slog.Warn("mailgun signature stale",
			"webhook_time", webhookTime,
			"age", age,
			"max_age", maxAge,
		)
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		slog.Warn("mailgun signature mismatch", "signature_length", len(signature))
		return false
	}

	return true
}
