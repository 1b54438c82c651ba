package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"devpipe/internal/fingerprint"
	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// Sink receives finished log events. Implementations must not be called
// from the event loop while it holds partially-updated state; the loop
// always completes its in-memory transition before writing.
type Sink interface {
	Write(ev model.LogEvent)
}

// Options are the core engine tunables.
type Options struct {
	TruncateLen    int
	BundleInterval time.Duration
	BundleMaxItems int
	ClickWindow    time.Duration
	ClickLimit     int
	ClickDebounce  time.Duration
	QueueSize      int
}

// DefaultOptions mirror the original monitor's behavior.
func DefaultOptions() Options {
	return Options{
		TruncateLen:    fingerprint.DefaultTruncateLen,
		BundleInterval: 5 * time.Second,
		BundleMaxItems: 50,
		ClickWindow:    time.Second,
		ClickLimit:     3,
		ClickDebounce:  200 * time.Millisecond,
		QueueSize:      1024,
	}
}

// Monitor is the single-loop event-processing core. All per-session
// state (baselines, bundle sets, click window) is owned by the loop
// goroutine; handlers run to completion, so state mutation is atomic
// with respect to other handlers.
type Monitor struct {
	opts    Options
	log     logger.Logger
	sink    Sink
	events  chan model.RawEvent
	proc    *processor
	bundle  *bundler
	clicks  *clickLimiter
	logging atomic.Bool
	session atomic.Value // string
}

// New builds a Monitor. Logging starts paused; StartLogging arms it.
func New(opts Options, sink Sink, l logger.Logger) *Monitor {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BundleInterval <= 0 {
		opts.BundleInterval = 5 * time.Second
	}
	m := &Monitor{
		opts:   opts,
		log:    l,
		sink:   sink,
		events: make(chan model.RawEvent, opts.QueueSize),
	}
	norm := fingerprint.New(opts.TruncateLen)
	m.proc = newProcessor(norm, m.emit, l)
	m.bundle = newBundler(opts.BundleMaxItems, m.emit)
	m.clicks = newClickLimiter(opts.ClickWindow, opts.ClickLimit, opts.ClickDebounce, opts.TruncateLen, m.emit)
	m.session.Store(uuid.NewString())
	return m
}

// Feed delivers a raw event to the loop in arrival order. Blocks only
// when the queue is full.
func (m *Monitor) Feed(ev model.RawEvent) {
	m.events <- ev
}

// ResetSession discards all per-session state. The reset is routed
// through the event loop so it never runs concurrently with a handler;
// pending state is discarded, not drained.
func (m *Monitor) ResetSession() {
	m.events <- model.RawEvent{Type: model.RawReset, Timestamp: time.Now()}
}

// SessionID returns the current session identifier.
func (m *Monitor) SessionID() string {
	return m.session.Load().(string)
}

// StartLogging arms emission and records the session start. Routed
// through the event loop like every other control event, so the
// SESSION_START line precedes anything fed after this call.
func (m *Monitor) StartLogging(logPath string) {
	m.events <- model.RawEvent{Type: model.RawStart, Timestamp: time.Now(), LogPath: logPath}
}

// Resume re-arms emission against the existing log target without
// recording a new session start.
func (m *Monitor) Resume() {
	m.logging.Store(true)
}

// Pause suspends emission without touching session state.
func (m *Monitor) Pause() {
	m.logging.Store(false)
}

// IsLogging reports whether emission is armed.
func (m *Monitor) IsLogging() bool {
	return m.logging.Load()
}

// Run executes the event loop until ctx is canceled. The bundler's
// periodic flush is a select case in the same loop, so flush and
// accumulation serialize by construction.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.BundleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.safely(func() { m.bundle.flush() })
		case ev := <-m.events:
			m.safely(func() { m.dispatch(ev) })
		}
	}
}

// safely confines a handler failure to the single event that caused
// it; the loop keeps processing.
func (m *Monitor) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("event handler failed, skipping event", "panic", r)
		}
	}()
	fn()
}

func (m *Monitor) dispatch(ev model.RawEvent) {
	switch ev.Type {
	case model.RawStart:
		m.logging.Store(true)
		m.emit(model.SessionStart, map[string]any{
			"log_file": ev.LogPath,
			"session":  m.SessionID(),
		})
	case model.RawReset:
		m.resetSession()
	case model.RawRequest, model.RawResponse:
		if category, ok := staticCategory(ev.ResourceType); ok {
			if m.bundle.accumulate(category, ev.URL) {
				m.bundle.flush()
			}
			return
		}
		m.proc.handle(ev)
	case model.RawClick:
		m.clicks.accept(ev)
	case model.RawNavigation:
		m.emit(model.PageNavigation, map[string]any{"url": ev.NavigationURL})
	default:
		m.log.Debug("unknown raw event type", "type", string(ev.Type))
	}
}

// resetSession clears baselines, bundle sets and the click window and
// issues a fresh session id.
func (m *Monitor) resetSession() {
	m.proc.reset()
	m.bundle.clear()
	m.clicks.reset()
	m.session.Store(uuid.NewString())
	m.log.Info("session state reset", "session", m.SessionID())
}

func (m *Monitor) emit(t model.LogEventType, data map[string]any) {
	if !m.logging.Load() || m.sink == nil {
		return
	}
	m.sink.Write(model.NewLogEvent(t, data))
}
