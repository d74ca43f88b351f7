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
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bcem/engagement/internal/models"
	"github.com/bcem/engagement/internal/queue"
)

// JobPublisher forwards normalized jobs to the simulator queue.
type JobPublisher interface {
	Publish(ctx context.Context, queueName, messageID string, v any) error
}

// DedupFilter reports whether a message id has been seen before, marking it
// as seen when it has not.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Worker consumes raw webhook envelopes and forwards canonical jobs.
type Worker struct {
	publisher JobPublisher
	dedup     DedupFilter
}

// NewWorker creates the normalizer's message handler. dedup may be nil to
// disable duplicate suppression.
func NewWorker(publisher JobPublisher, dedup DedupFilter) *Worker {
	return &Worker{publisher: publisher, dedup: dedup}
}

// Handle processes one inbound envelope body and returns its acknowledgment
// disposition:
//
//   - unparsable envelope → NackDrop (permanently malformed, no requeue)
//   - downstream publish failure → NackRequeue (transient, retry later)
//   - forwarded or duplicate → Ack
func (w *Worker) Handle(ctx context.Context, body []byte) queue.Disposition {
	var envelope models.InboundWebhook
	if err := json.Unmarshal(body, &envelope); err != nil {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		slog.Error("envelope parse failed",
			"body_preview", string(preview),
			"error", err,
		)
		return queue.NackDrop
	}

	job, err := Normalize(envelope)
	if err != nil {
		slog.Error("envelope normalization failed", "error", err)
		return queue.NackDrop
	}

	if w.dedup != nil {
		isNew, err := w.dedup.IsNew(ctx, job.MessageID)
		if err != nil {
			// Dedup is advisory — process anyway rather than lose the job.
			slog.Warn("dedup check failed, proceeding",
				"message_id", job.MessageID,
				"error", err,
			)
		} else if !isNew {
			slog.Info("skipping duplicate job", "message_id", job.MessageID)
			return queue.Ack
		}
	}

	if err := w.publisher.Publish(ctx, models.SimulatorQueue, job.MessageID, job); err != nil {
		slog.Error("job publish failed, requeueing envelope",
			"message_id", job.MessageID,
			"error", err,
		)
		return queue.NackRequeue
	}

	slog.Info("job forwarded",
		"message_id", job.MessageID,
		"to", job.To,
		"has_html", job.HTML != nil,
	)

	return queue.Ack
}
