package fingerprint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"devpipe/pkg/model"
)

// Absent marks a field that was missing or unparseable in the raw event.
const Absent = "<absent>"

// truncationMark is appended to values cut at the truncation length.
const truncationMark = "...[truncated]"

// DefaultTruncateLen bounds string values in normalized representations.
const DefaultTruncateLen = 200

// trackedHeaders is the allow-list of headers kept in normalized
// representations. x-request-id is tracked deliberately: a changed
// request id on an otherwise identical request signals a retry.
var trackedHeaders = []string{
	"content-type",
	"accept",
	"origin",
	"referer",
	"x-request-id",
}

// Key derives the logical request-class fingerprint: upper-cased method
// and the URL with query string and fragment stripped, joined by "::".
// Pure; identical inputs always yield the identical key.
func Key(method, rawURL string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = Absent
	}
	return m + "::" + StripQuery(rawURL)
}

// StripQuery removes the query string and fragment from a URL.
func StripQuery(rawURL string) string {
	if rawURL == "" {
		return Absent
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		// fall back to a plain cut so malformed URLs still fingerprint
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Query returns the raw query string of a URL, or "" when none.
func Query(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.Index(rawURL, "?"); i >= 0 {
			return rawURL[i+1:]
		}
		return ""
	}
	return u.RawQuery
}

// Truncate cuts s at max runes and appends the truncation marker.
func Truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultTruncateLen
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + truncationMark
}

// Normalizer produces simplified, size-bounded representations of raw
// network events. Deterministic and side-effect-free: equal
// semantically-relevant input yields equal output.
type Normalizer struct {
	TruncateLen int
}

// New creates a Normalizer with the given truncation length.
func New(truncateLen int) *Normalizer {
	if truncateLen <= 0 {
		truncateLen = DefaultTruncateLen
	}
	return &Normalizer{TruncateLen: truncateLen}
}

// Normalize maps a raw event to its normalized representation. It never
// fails: missing or malformed fields become the Absent marker so an
// unparseable event cannot crash the pipeline.
func (n *Normalizer) Normalize(ev model.RawEvent) map[string]any {
	rep := map[string]any{
		"method":       stringOrAbsent(strings.ToUpper(strings.TrimSpace(ev.Method))),
		"url":          StripQuery(ev.URL),
		"query":        Query(ev.URL),
		"resourceType": stringOrAbsent(ev.ResourceType),
	}
	switch ev.Type {
	case model.RawResponse:
		rep["response"] = map[string]any{
			"status":   ev.Status,
			"mimeType": stringOrAbsent(ev.MimeType),
			"headers":  n.normalizeHeaders(ev),
		}
	default:
		rep["request"] = map[string]any{
			"headers": n.normalizeHeaders(ev),
			"body":    n.normalizeBody(ev.Body),
		}
	}
	return rep
}

// normalizeHeaders reduces headers to the tracked allow-list. Every
// tracked name is present in the output so a header that disappears
// diffs to Absent instead of vanishing from the path set.
func (n *Normalizer) normalizeHeaders(ev model.RawEvent) map[string]any {
	out := make(map[string]any, len(trackedHeaders))
	for _, name := range trackedHeaders {
		if v := ev.Headers.Get(name); v != "" {
			out[name] = Truncate(v, n.TruncateLen)
		} else {
			out[name] = Absent
		}
	}
	return out
}

// normalizeBody decodes JSON bodies into nested maps so the differ can
// address inner fields; anything else is kept as a truncated string.
func (n *Normalizer) normalizeBody(body string) any {
	if body == "" {
		return Absent
	}
	if gjson.Valid(body) {
		if v := gjson.Parse(body).Value(); v != nil {
			return n.bound(v, 0)
		}
	}
	return Truncate(body, n.TruncateLen)
}

// maxBodyDepth caps recursion into decoded JSON bodies.
const maxBodyDepth = 6

// bound truncates every string leaf of a decoded JSON value.
func (n *Normalizer) bound(v any, depth int) any {
	if depth >= maxBodyDepth {
		return Truncate(fmt.Sprint(v), n.TruncateLen)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = n.bound(e, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = n.bound(e, depth+1)
		}
		return out
	case string:
		return Truncate(t, n.TruncateLen)
	case nil:
		return Absent
	default:
		return t
	}
}

func stringOrAbsent(s string) string {
	if s == "" {
		return Absent
	}
	return s
}
