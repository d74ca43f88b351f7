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

package htmlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImageSources(t *testing.T) {
	html := `<html><body>
		<img src="https://cdn.example.com/a.png">
		<img src="/relative/b.png">
		<img src="cid:inline-logo">
		<img alt="no source">
		<img src="http://cdn.example.com/c.gif">
	</body></html>`

	got := ExtractImageSources(html)
	require.Len(t, got, 2)
	assert.Equal(t, "https://cdn.example.com/a.png", got[0])
	assert.Equal(t, "http://cdn.example.com/c.gif", got[1])
}

func TestExtractImageSourcesEmpty(t *testing.T) {
	assert.Empty(t, ExtractImageSources(""))
	assert.Empty(t, ExtractImageSources("<p>no images</p>"))
}

func TestFindTrackingPixel(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "exct pixel",
			html: `<img src="https://cdn.example.com/x.png"><img src="https://cl.s4.exct.net/open.aspx?id=1">`,
			want: "https://cl.s4.exct.net/open.aspx?id=1",
		},
		{
			name: "salesforce pixel",
			html: `<img src="https://tracking.e360.salesforce.com/open/abc">`,
			want: "https://tracking.e360.salesforce.com/open/abc",
		},
		{
			name: "case insensitive",
			html: `<img src="https://CL.S4.EXCT.NET/open.aspx?id=2">`,
			want: "https://CL.S4.EXCT.NET/open.aspx?id=2",
		},
		{
			name: "no pixel",
			html: `<img src="https://cdn.example.com/x.png">`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindTrackingPixel(tt.html))
		})
	}
}

func TestFindGlobalClickRate(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		assert.Nil(t, FindGlobalClickRate(`<div data-click-rate="0.5">no scope</div>`))
	})

	t.Run("present", func(t *testing.T) {
		got := FindGlobalClickRate(`<div data-scope="global" data-click-rate="0.8"></div>`)
		require.NotNil(t, got)
		assert.Equal(t, 0.8, *got)
	})

	t.Run("first parsable wins", func(t *testing.T) {
		html := `
			<div data-scope="global" data-click-rate="oops"></div>
			<div data-scope="global" data-click-rate="0.4"></div>
			<div data-scope="global" data-click-rate="0.9"></div>`
		got := FindGlobalClickRate(html)
		require.NotNil(t, got)
		assert.Equal(t, 0.4, *got)
	})

	t.Run("clamped above one", func(t *testing.T) {
		got := FindGlobalClickRate(`<div data-scope="global" data-click-rate="1.5"></div>`)
		require.NotNil(t, got)
		assert.Equal(t, 1.0, *got)
	})

	t.Run("clamped below zero", func(t *testing.T) {
		got := FindGlobalClickRate(`<div data-scope="global" data-click-rate="-0.2"></div>`)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	})

	t.Run("unparsable is absent", func(t *testing.T) {
		assert.Nil(t, FindGlobalClickRate(`<div data-scope="global" data-click-rate="abc"></div>`))
	})
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="https://shop.example.com/deal">Deal</a>
		<a href="https://shop.example.com/deal">Same deal again</a>
		<a href="/local">relative</a>
		<a href="mailto:hi@example.com">mail</a>
		<a href="https://news.example.org/story" data-click-rate="0.25">Story</a>
	</body></html>`

	got := ExtractLinks(html)
	require.Len(t, got, 2)

	assert.Equal(t, "https://shop.example.com/deal", got[0].URL)
	assert.Nil(t, got[0].ClickRate)

	assert.Equal(t, "https://news.example.org/story", got[1].URL)
	require.NotNil(t, got[1].ClickRate)
	assert.Equal(t, 0.25, *got[1].ClickRate)
}

func TestExtractLinksRateClamping(t *testing.T) {
	html := `
		<a href="https://a.example.com/" data-click-rate="1.5">over</a>
		<a href="https://b.example.com/" data-click-rate="-3">under</a>
		<a href="https://c.example.com/" data-click-rate="nope">bad</a>`

	got := ExtractLinks(html)
	require.Len(t, got, 3)

	require.NotNil(t, got[0].ClickRate)
	assert.Equal(t, 1.0, *got[0].ClickRate)

	require.NotNil(t, got[1].ClickRate)
	assert.Equal(t, 0.0, *got[1].ClickRate)

	// Unparsable override falls back to the global rate.
	assert.Nil(t, got[2].ClickRate)
}
