package monitor

import (
	"devpipe/internal/diff"
	"devpipe/internal/fingerprint"
	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// processor is the per-fingerprint dedup/diff state machine. It owns
// the baseline map exclusively; a fingerprint is Unseen until its first
// event establishes a baseline, after which every event diffs against
// the most recent representation (chained diffs).
type processor struct {
	norm      *fingerprint.Normalizer
	baselines map[string]map[string]any
	emit      func(model.LogEventType, map[string]any)
	log       logger.Logger
}

func newProcessor(norm *fingerprint.Normalizer, emit func(model.LogEventType, map[string]any), l logger.Logger) *processor {
	return &processor{
		norm:      norm,
		baselines: make(map[string]map[string]any),
		emit:      emit,
		log:       l,
	}
}

func (p *processor) handle(ev model.RawEvent) {
	key := fingerprint.Key(ev.Method, ev.URL)
	rep := p.norm.Normalize(ev)

	base, tracked := p.baselines[key]
	if !tracked {
		p.baselines[key] = rep
		p.emit(model.NetworkRequest, map[string]any{
			"fingerprint": key,
			"requestId":   ev.RequestID,
			"request":     rep,
		})
		return
	}

	// An event carries only its own section (request or response);
	// inherit the other side from the baseline so a response following
	// a request diffs as one added subtree, not a full rewrite.
	merged := inheritSections(base, rep)
	changes := diff.Diff(base, merged)
	if len(changes) == 0 {
		// identical to the last seen instance; suppress
		return
	}
	p.baselines[key] = merged
	p.emit(model.NetworkDiff, map[string]any{
		"fingerprint": key,
		"requestId":   ev.RequestID,
		"url_params":  fingerprint.Query(ev.URL),
		"changes":     changes,
	})
}

func (p *processor) reset() {
	p.baselines = make(map[string]map[string]any)
}

// inheritSections copies the request/response sections the new
// representation does not carry from the baseline. Inherited sections
// are shared by reference; representations are never mutated after
// construction, so aliasing is safe.
func inheritSections(base, rep map[string]any) map[string]any {
	merged := make(map[string]any, len(rep)+1)
	for k, v := range rep {
		merged[k] = v
	}
	for _, section := range []string{"request", "response"} {
		if _, ok := merged[section]; ok {
			continue
		}
		if v, ok := base[section]; ok {
			merged[section] = v
		}
	}
	return merged
}
