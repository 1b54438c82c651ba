package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpipe/pkg/model"
)

func TestStaticCategoryRouting(t *testing.T) {
	tests := []struct {
		resourceType string
		category     string
		static       bool
	}{
		{"Stylesheet", "stylesheets", true},
		{"Script", "scripts", true},
		{"Image", "images", true},
		{"Font", "fonts", true},
		{"XHR", "", false},
		{"Document", "", false},
		{"Fetch", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.resourceType, func(t *testing.T) {
			c, ok := staticCategory(tt.resourceType)
			assert.Equal(t, tt.static, ok)
			assert.Equal(t, tt.category, c)
		})
	}
}

func TestFlushEmitsAccumulatedStylesheets(t *testing.T) {
	c := &capture{}
	b := newBundler(50, c.emit)

	const n = 7
	for i := 0; i < n; i++ {
		b.accumulate("stylesheets", fmt.Sprintf("https://cdn/x%d.css", i))
	}
	b.flush()

	require.Len(t, c.events, 1)
	assert.Equal(t, model.ResourceBundle, c.events[0].typ)
	sheets, ok := c.events[0].data["stylesheets"].([]string)
	require.True(t, ok)
	assert.Len(t, sheets, n)
	// empty categories are omitted, not emitted as empty lists
	assert.NotContains(t, c.events[0].data, "scripts")
	assert.NotContains(t, c.events[0].data, "images")
	assert.NotContains(t, c.events[0].data, "fonts")
}

func TestDuplicateURLsCollapse(t *testing.T) {
	c := &capture{}
	b := newBundler(50, c.emit)
	for i := 0; i < 5; i++ {
		b.accumulate("scripts", "https://cdn/app.js")
	}
	b.flush()

	require.Len(t, c.events, 1)
	assert.Len(t, c.events[0].data["scripts"], 1)
}

func TestFlushClearsAllSets(t *testing.T) {
	c := &capture{}
	b := newBundler(50, c.emit)
	b.accumulate("scripts", "https://cdn/app.js")
	b.accumulate("fonts", "https://cdn/f.woff2")
	b.flush()
	require.Len(t, c.events, 1)

	// next accumulation starts from empty sets
	b.accumulate("scripts", "https://cdn/other.js")
	b.flush()
	require.Len(t, c.events, 2)
	assert.Equal(t, []string{"https://cdn/other.js"}, c.events[1].data["scripts"])
	assert.NotContains(t, c.events[1].data, "fonts")
}

func TestEmptyFlushIsNoOp(t *testing.T) {
	c := &capture{}
	b := newBundler(50, c.emit)
	b.flush()
	assert.Empty(t, c.events)
}

func TestCountCeilingSignalsFlush(t *testing.T) {
	c := &capture{}
	b := newBundler(3, c.emit)
	assert.False(t, b.accumulate("images", "https://cdn/1.png"))
	assert.False(t, b.accumulate("images", "https://cdn/2.png"))
	assert.True(t, b.accumulate("fonts", "https://cdn/3.woff"))
}
