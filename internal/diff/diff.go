package diff

import (
	"fmt"
	"reflect"
	"sort"
)

// Removed marks a leaf that exists in the old representation but not in
// the new one. Reporting removals with a sentinel keeps the path set
// complete for remove-only transitions.
const Removed = "<removed>"

// Diff computes the minimal set of changed-path -> new-value pairs for
// the transition old -> new. Map keys compare order-insensitively,
// sequences by index. Paths use the root['a']['b'][0] form. An empty
// result means the two representations are structurally equal.
//
// Deterministic: identical inputs always yield the identical result set
// (map unions are walked in sorted key order).
func Diff(old, new map[string]any) map[string]any {
	out := make(map[string]any)
	diffMap("root", old, new, out)
	return out
}

func diffValue(path string, a, b any, out map[string]any) {
	switch bv := b.(type) {
	case map[string]any:
		if av, ok := a.(map[string]any); ok {
			diffMap(path, av, bv, out)
			return
		}
		// type changed into a subtree: report every new leaf
		addLeaves(path, bv, out)
	case []any:
		if av, ok := a.([]any); ok {
			diffSlice(path, av, bv, out)
			return
		}
		addLeaves(path, bv, out)
	default:
		if !reflect.DeepEqual(a, b) {
			out[path] = b
		}
	}
}

func diffMap(path string, a, b map[string]any, out map[string]any) {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		child := fmt.Sprintf("%s['%s']", path, k)
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && inB:
			diffValue(child, av, bv, out)
		case inB:
			addLeaves(child, bv, out)
		default:
			removeLeaves(child, av, out)
		}
	}
}

func diffSlice(path string, a, b []any, out map[string]any) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		child := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case i < len(a) && i < len(b):
			diffValue(child, a[i], b[i], out)
		case i < len(b):
			addLeaves(child, b[i], out)
		default:
			removeLeaves(child, a[i], out)
		}
	}
}

// addLeaves records every leaf under v as an added entry.
func addLeaves(path string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addLeaves(fmt.Sprintf("%s['%s']", path, k), t[k], out)
		}
	case []any:
		for i, e := range t {
			addLeaves(fmt.Sprintf("%s[%d]", path, i), e, out)
		}
	default:
		out[path] = v
	}
}

// removeLeaves records every leaf under v with the Removed sentinel.
func removeLeaves(path string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			removeLeaves(fmt.Sprintf("%s['%s']", path, k), t[k], out)
		}
	case []any:
		for i, e := range t {
			removeLeaves(fmt.Sprintf("%s[%d]", path, i), e, out)
		}
	default:
		out[path] = Removed
	}
}
