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

// Package htmlparse extracts images, links, and engagement-rate attributes
// from email HTML. Only absolute http(s) URLs are ever returned; relative
// URLs are discarded at extraction time.
package htmlparse

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rateAttr carries per-link and global click-rate overrides embedded in the
// email HTML by campaign tooling.
const rateAttr = "data-click-rate"

// sfmcPixelPatterns identify Salesforce Marketing Cloud open pixels, which
// must be fetched before any generic images. Matched case-insensitively.
var sfmcPixelPatterns = []string{
	"://cl.s4.exct.net/open.aspx",
	"tracking.e360.salesforce.com/open",
}

// Link is a candidate click target with an optional per-link rate override.
// A nil ClickRate means the effective global rate applies.
type Link struct {
	URL       string
	ClickRate *float64
}

func isAbsolute(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func parseDocument(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("html parse failed", "html_length", len(html), "error", err)
		return nil
	}
	return doc
}

// clampRate parses a rate attribute into [0,1]. Unparsable values are treated
// as absent.
func clampRate(raw string) (float64, bool) {
	rate, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		slog.Warn("invalid rate attribute", "raw", raw)
		return 0, false
	}

	if rate < 0 {
		slog.Warn("rate attribute below zero, clamping", "raw", raw)
		return 0, true
	}
	if rate > 1 {
		slog.Warn("rate attribute above one, clamping", "raw", raw)
		return 1, true
	}
	return rate, true
}

// ExtractImageSources returns every absolute http(s) <img> source, in
// document order.
func ExtractImageSources(html string) []string {
	doc := parseDocument(html)
	if doc == nil {
		return nil
	}

	var urls []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); isAbsolute(src) {
			urls = append(urls, src)
		}
	})
	return urls
}

// FindTrackingPixel returns the first image source matching a known SFMC open
// pixel pattern, or "" if none is present.
func FindTrackingPixel(html string) string {
	for _, src := range ExtractImageSources(html) {
		low := strings.ToLower(src)
		for _, pattern := range sfmcPixelPatterns {
			if strings.Contains(low, pattern) {
				slog.Info("tracking pixel found", "url", src)
				return src
			}
		}
	}
	return ""
}

// FindGlobalClickRate returns the clamped click-rate override from the first
// <div data-scope="global" data-click-rate="..."> carrying a parsable value,
// or nil when no override is present.
func FindGlobalClickRate(html string) *float64 {
	doc := parseDocument(html)
	if doc == nil {
		return nil
	}

	var found *float64
	doc.Find(`div[data-scope="global"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, ok := s.Attr(rateAttr)
		if !ok {
			return true
		}
		if rate, ok := clampRate(raw); ok {
			found = &rate
			return false
		}
		return true
	})

	if found != nil {
		slog.Info("global click rate override", "rate", *found)
	}
	return found
}

// ExtractLinks returns all anchors with absolute http(s) hrefs, deduplicated
// by exact URL, each with its optional clamped per-link rate override.
func ExtractLinks(html string) []Link {
	doc := parseDocument(html)
	if doc == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []Link

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !isAbsolute(href) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		link := Link{URL: href}
		if raw, ok := s.Attr(rateAttr); ok {
			if rate, ok := clampRate(raw); ok {
				link.ClickRate = &rate
			}
		}
		links = append(links, link)
	})

	return links
}
