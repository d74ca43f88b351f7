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
	"math/rand"
	"net/url"
	"strings"

	"github.com/bcem/engagement/internal/htmlparse"
)

// unsubscribePattern identifies unsubscribe-center links that a simulated
// recipient must never click unless the link carries its own click rate.
const unsubscribePattern = "cl.s4.exct.net/unsub_center.aspx"

// filterLinks drops links the simulation must not touch: unsubscribe links
// without a per-link rate override, and links failing the domain filters.
// The denylist is checked before the allowlist; both match by substring
// against the lowercased host.
func filterLinks(links []htmlparse.Link, allow, deny []string) []htmlparse.Link {
	kept := make([]htmlparse.Link, 0, len(links))
	for _, link := range links {
		if strings.Contains(strings.ToLower(link.URL), unsubscribePattern) && link.ClickRate == nil {
			continue
		}

		host := linkHost(link.URL)
		if matchesAny(host, deny) {
			continue
		}
		if len(allow) > 0 && !matchesAny(host, allow) {
			continue
		}

		kept = append(kept, link)
	}
	return kept
}

// chooseWeighted draws up to maxClicks links, weighting each by its per-link
// rate override or defaultRate when it has none. Weights stay in the pool
// between draws, so the same link can be chosen more than once. All-zero
// weights yield no selection.
func chooseWeighted(rng *rand.Rand, links []htmlparse.Link, maxClicks int, defaultRate float64) []string {
	if len(links) == 0 || maxClicks <= 0 {
		return nil
	}

	weights := make([]float64, len(links))
	for i, link := range links {
		if link.ClickRate != nil {
			weights[i] = *link.ClickRate
		} else {
			weights[i] = defaultRate
		}
	}

	var chosen []string
	for draw := 0; draw < maxClicks; draw++ {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			break
		}

		target := rng.Float64() * total
		for i, w := range weights {
			target -= w
			if target <= 0 {
				chosen = append(chosen, links[i].URL)
				break
			}
		}
	}

	return chosen
}

// linkHost extracts the lowercased host of an absolute url, falling back to
// the whole string when it does not parse.
func linkHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Host)
}

func matchesAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
