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

package simulate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bcem/engagement/internal/models"
	"github.com/bcem/engagement/internal/queue"
)

// Worker consumes canonical jobs and runs the simulation for each.
type Worker struct {
	engine *Engine
}

// NewWorker wraps an engine as a queue handler.
func NewWorker(engine *Engine) *Worker {
	return &Worker{engine: engine}
}

// Handle runs the simulation for one job body. Only a malformed body is
// dropped; a parsed job is always acknowledged after simulation, whatever
// its fetches did.
func (w *Worker) Handle(ctx context.Context, body []byte) queue.Disposition {
	var job models.SimulatorJob
	if err := json.Unmarshal(body, &job); err != nil {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		slog.Error("job parse failed",
			"body_preview", string(preview),
			"error", err,
		)
		return queue.NackDrop
	}

	w.engine.Run(ctx, job)
	return queue.Ack
}
