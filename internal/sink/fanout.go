package sink

import "devpipe/pkg/model"

// Writer is anything that can take a finished log event.
type Writer interface {
	Write(ev model.LogEvent)
}

// Fanout delivers each event to every attached writer in order.
type Fanout struct {
	writers []Writer
}

// NewFanout builds a fan-out over the given writers; nils are skipped.
func NewFanout(writers ...Writer) *Fanout {
	f := &Fanout{}
	for _, w := range writers {
		if w != nil {
			f.writers = append(f.writers, w)
		}
	}
	return f
}

func (f *Fanout) Write(ev model.LogEvent) {
	for _, w := range f.writers {
		w.Write(ev)
	}
}
