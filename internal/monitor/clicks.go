package monitor

import (
	"time"

	"github.com/tidwall/gjson"

	"devpipe/internal/fingerprint"
	"devpipe/pkg/model"
)

// clickLimiter enforces the anti-spam ceiling on UI click events: a
// 200ms micro-debounce in front of a sliding 1-second window capped at
// 3 accepted clicks. Over-limit clicks are dropped silently; dropping
// is policy, not a fault.
type clickLimiter struct {
	window      time.Duration
	limit       int
	debounce    time.Duration
	truncateLen int
	stamps      []time.Time
	last        time.Time
	emit        func(model.LogEventType, map[string]any)
}

func newClickLimiter(window time.Duration, limit int, debounce time.Duration, truncateLen int, emit func(model.LogEventType, map[string]any)) *clickLimiter {
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 3
	}
	return &clickLimiter{
		window:      window,
		limit:       limit,
		debounce:    debounce,
		truncateLen: truncateLen,
		emit:        emit,
	}
}

// accept runs the rate check and, if the click survives, emits a
// UI_CLICK enriched with context extracted from the descriptor.
func (c *clickLimiter) accept(ev model.RawEvent) {
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if !c.last.IsZero() && now.Sub(c.last) < c.debounce {
		return
	}

	cutoff := now.Add(-c.window)
	keep := c.stamps[:0]
	for _, t := range c.stamps {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	c.stamps = keep

	if len(c.stamps) >= c.limit {
		return
	}
	c.stamps = append(c.stamps, now)
	c.last = now

	c.emit(model.UIClick, extractContext(ev.ElementDescriptor, c.truncateLen))
}

func (c *clickLimiter) reset() {
	c.stamps = c.stamps[:0]
	c.last = time.Time{}
}

// contextFields are the scalar descriptor fields passed through to the
// log event. The element path already reflects shadow-root/iframe
// traversal done by the in-page scanner; it is trusted, not recomputed.
var contextFields = []string{
	"element_path",
	"target_text",
	"document_url",
	"tag",
	"href",
	"form_action",
	"input_type",
	"input_name",
	"button_type",
	"selected_value",
}

// extractContext is pure data extraction from the raw click descriptor,
// bounded in size like normalized network bodies: truncate, never fail.
func extractContext(descriptor string, truncateLen int) map[string]any {
	out := make(map[string]any)
	if descriptor == "" {
		out["raw"] = fingerprint.Absent
		return out
	}
	if !gjson.Valid(descriptor) {
		out["raw"] = fingerprint.Truncate(descriptor, truncateLen)
		return out
	}
	doc := gjson.Parse(descriptor)

	for _, f := range contextFields {
		if v := doc.Get(f); v.Exists() {
			out[f] = fingerprint.Truncate(v.String(), truncateLen)
		}
	}

	if attrs := doc.Get("attributes"); attrs.IsObject() {
		m := make(map[string]any)
		attrs.ForEach(func(k, v gjson.Result) bool {
			m[k.String()] = fingerprint.Truncate(v.String(), truncateLen)
			return true
		})
		out["attributes"] = m
	}

	// nested link findings collected by the scanner's inner walk
	if inner := doc.Get("inner_content"); inner.IsArray() {
		const maxFindings = 5
		findings := make([]map[string]any, 0, maxFindings)
		inner.ForEach(func(_, item gjson.Result) bool {
			f := map[string]any{}
			if t := item.Get("type"); t.Exists() {
				f["type"] = t.String()
			}
			if h := item.Get("href"); h.Exists() {
				f["href"] = fingerprint.Truncate(h.String(), truncateLen)
			}
			if t := item.Get("text"); t.Exists() {
				f["text"] = fingerprint.Truncate(t.String(), truncateLen)
			}
			findings = append(findings, f)
			return len(findings) < maxFindings
		})
		out["inner_content"] = findings
	}

	return out
}
