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

// Package simulate runs the engagement simulation for canonical jobs:
// probabilistic opens against tracking pixels and images, and probabilistic
// weighted clicks against links found in the email HTML.
package simulate

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/engagement/internal/htmlparse"
	"github.com/bcem/engagement/internal/models"
)

// Options configures simulation behaviour. All rates are in [0,1] and delay
// ranges are inclusive.
type Options struct {
	OpenProbability  float64
	ClickProbability float64
	MaxClicks        int
	OpenDelayMin     time.Duration
	OpenDelayMax     time.Duration
	ClickDelayMin    time.Duration
	ClickDelayMax    time.Duration
	RequestTimeout   time.Duration
	AllowDomains     []string
	DenyDomains      []string
	UserAgentPool    []string
}

// Outcome is the terminal result of simulating one job. It is logged, never
// persisted or re-queued.
type Outcome struct {
	MessageID   string
	To          string
	CustomerTag string
	Opened      bool
	Clicks      int
}

// Engine executes simulations. The HTTP client and its connection pool are
// shared across all concurrently running jobs; randomness is per-job.
type Engine struct {
	client *http.Client
	opts   Options

	// newRand builds the per-job generator. Jobs run on separate goroutines,
	// so each owns its own seeded instance instead of sharing one.
	newRand func() *rand.Rand
}

// NewEngine creates a simulation engine around a shared HTTP client.
func NewEngine(client *http.Client, opts Options) *Engine {
	return &Engine{
		client: client,
		opts:   opts,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// Run simulates one job. Phases run strictly in order: delay, open decision
// and execution, click decision, selection, and execution. Fetch failures are
// absorbed into the outcome counters and never surface as processing errors.
func (e *Engine) Run(ctx context.Context, job models.SimulatorJob) Outcome {
	var html string
	if job.HTML != nil {
		html = *job.HTML
	}

	slog.Info("simulation started",
		"message_id", job.MessageID,
		"to", job.To,
		"html_length", len(html),
	)

	rng := e.newRand()
	userAgent := pickUserAgent(rng, e.opts.UserAgentPool)
	headers := buildHeaders(userAgent)

	// One randomized pre-open delay models the recipient noticing the email.
	sleep(ctx, randomDelay(rng, e.opts.OpenDelayMin, e.opts.OpenDelayMax))

	opened := false
	if roll := rng.Float64(); roll < e.opts.OpenProbability {
		opened = e.simulateOpen(ctx, html, headers, job.MessageID)
	} else {
		slog.Info("open skipped", "message_id", job.MessageID)
	}

	effectiveRate := e.opts.ClickProbability
	if override := htmlparse.FindGlobalClickRate(html); override != nil {
		effectiveRate = *override
	}

	clicks := 0
	if roll := rng.Float64(); roll < effectiveRate {
		clicks = e.simulateClicks(ctx, rng, html, headers, effectiveRate, job.MessageID)
	} else {
		slog.Info("clicks skipped", "message_id", job.MessageID, "effective_rate", effectiveRate)
	}

	outcome := Outcome{
		MessageID:   job.MessageID,
		To:          job.To,
		CustomerTag: extractPlusTag(job.To),
		Opened:      opened,
		Clicks:      clicks,
	}

	slog.Info("simulation complete",
		"message_id", outcome.MessageID,
		"to", outcome.To,
		"customer_tag", outcome.CustomerTag,
		"opened", outcome.Opened,
		"clicks", outcome.Clicks,
	)

	return outcome
}

// simulateOpen fetches the special tracking pixel first (if present) and then
// up to 5 remaining images concurrently. The pixel is tried first but does
// not gate the rest: the open counts if any fetch succeeds.
func (e *Engine) simulateOpen(ctx context.Context, html string, headers map[string]string, messageID string) bool {
	pixel := htmlparse.FindTrackingPixel(html)
	images := htmlparse.ExtractImageSources(html)

	opened := false
	if pixel != "" {
		opened = e.fetchURL(ctx, pixel, headers)
		slog.Info("tracking pixel fetched",
			"message_id", messageID,
			"url", pixel,
			"success", opened,
		)

		remaining := images[:0]
		for _, src := range images {
			if src != pixel {
				remaining = append(remaining, src)
			}
		}
		images = remaining
	}

	opened = e.fetchImages(ctx, images, headers) || opened

	slog.Info("open simulated",
		"message_id", messageID,
		"pixel_found", pixel != "",
		"images_found", len(images),
		"opened", opened,
	)

	return opened
}

// simulateClicks selects links by weight and fetches each after a fresh
// randomized delay. Returns the number of successful clicks.
func (e *Engine) simulateClicks(ctx context.Context, rng *rand.Rand, html string, headers map[string]string, effectiveRate float64, messageID string) int {
	links := htmlparse.ExtractLinks(html)
	filtered := filterLinks(links, e.opts.AllowDomains, e.opts.DenyDomains)
	chosen := chooseWeighted(rng, filtered, e.opts.MaxClicks, effectiveRate)

	slog.Info("click selection",
		"message_id", messageID,
		"links_found", len(links),
		"links_after_filter", len(filtered),
		"links_chosen", len(chosen),
	)

	clicks := 0
	for _, url := range chosen {
		sleep(ctx, randomDelay(rng, e.opts.ClickDelayMin, e.opts.ClickDelayMax))
		if e.fetchURL(ctx, url, headers) {
			clicks++
		}
	}

	return clicks
}

// extractPlusTag returns the plus-addressing tag of a recipient address:
// "user+tag@example.com" yields "tag", "user@example.com" yields "".
func extractPlusTag(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		local = email
	}
	_, tag, found := strings.Cut(local, "+")
	if !found {
		return ""
	}
	return tag
}

// randomDelay draws uniformly from the inclusive [min,max] range.
func randomDelay(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// sleep waits out the delay, returning early only if ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
