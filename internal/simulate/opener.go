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
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

// maxOpenImages caps how many non-pixel images a single open fetches.
const maxOpenImages = 5

// fetchURL performs one GET with the simulated client headers. Success means
// a status in [200,400); network errors and other statuses are logged and
// reported as failure, never propagated.
func (e *Engine) fetchURL(ctx context.Context, url string, headers map[string]string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("request build failed", "url", url, "error", err)
		return false
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Warn("fetch failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused by the shared pool.
	io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	if !ok {
		slog.Warn("fetch returned error status", "url", url, "status", resp.StatusCode)
	}
	return ok
}

// fetchImages fetches up to maxOpenImages urls concurrently and reports
// whether any of them succeeded.
func (e *Engine) fetchImages(ctx context.Context, urls []string, headers map[string]string) bool {
	if len(urls) > maxOpenImages {
		urls = urls[:maxOpenImages]
	}
	if len(urls) == 0 {
		return false
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if e.fetchURL(ctx, url, headers) {
				succeeded.Add(1)
			}
		}(url)
	}
	wg.Wait()

	return succeeded.Load() > 0
}
