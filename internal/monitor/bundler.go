package monitor

import (
	"sort"
	"strings"

	"devpipe/pkg/model"
)

// bundleCategories maps a static resource type to its bundle key.
// Everything else routes to the network event processor.
var bundleCategories = map[string]string{
	"stylesheet": "stylesheets",
	"script":     "scripts",
	"image":      "images",
	"font":       "fonts",
}

// staticCategory reports whether a resource type belongs to the
// low-value static set, and under which bundle key.
func staticCategory(resourceType string) (string, bool) {
	c, ok := bundleCategories[strings.ToLower(resourceType)]
	return c, ok
}

// bundler accumulates static-resource URLs by category and flushes them
// as a single RESOURCE_BUNDLE event. Set semantics: duplicate URLs
// within a flush window collapse. The owning loop serializes
// accumulate, flush and clear.
type bundler struct {
	sets     map[string]map[string]struct{}
	maxItems int
	emit     func(model.LogEventType, map[string]any)
}

func newBundler(maxItems int, emit func(model.LogEventType, map[string]any)) *bundler {
	if maxItems <= 0 {
		maxItems = 50
	}
	b := &bundler{maxItems: maxItems, emit: emit}
	b.clear()
	return b
}

// accumulate records a URL and reports whether the count ceiling has
// been reached and the caller should flush.
func (b *bundler) accumulate(category, url string) bool {
	if url == "" {
		return false
	}
	b.sets[category][url] = struct{}{}
	return b.total() >= b.maxItems
}

// flush emits one RESOURCE_BUNDLE carrying the non-empty categories,
// then clears all sets. A flush with nothing accumulated is a no-op.
func (b *bundler) flush() {
	if b.total() == 0 {
		return
	}
	data := make(map[string]any)
	for category, set := range b.sets {
		if len(set) == 0 {
			continue
		}
		urls := make([]string, 0, len(set))
		for u := range set {
			urls = append(urls, u)
		}
		sort.Strings(urls)
		data[category] = urls
	}
	b.emit(model.ResourceBundle, data)
	b.clear()
}

func (b *bundler) clear() {
	b.sets = map[string]map[string]struct{}{
		"stylesheets": {},
		"scripts":     {},
		"images":      {},
		"fonts":       {},
	}
}

func (b *bundler) total() int {
	n := 0
	for _, set := range b.sets {
		n += len(set)
	}
	return n
}
