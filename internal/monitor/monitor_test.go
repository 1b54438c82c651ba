package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
	"devpipe/pkg/traffic"
)

type chanSink struct {
	ch chan model.LogEvent
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan model.LogEvent, 64)}
}

func (s *chanSink) Write(ev model.LogEvent) { s.ch <- ev }

func (s *chanSink) next(t *testing.T) model.LogEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for log event")
		return model.LogEvent{}
	}
}

func (s *chanSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-s.ch:
		t.Fatalf("unexpected log event %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BundleInterval = time.Hour // count ceiling drives flushes in tests
	opts.BundleMaxItems = 2
	return opts
}

func startMonitor(t *testing.T, opts Options) (*Monitor, *chanSink) {
	t.Helper()
	sink := newChanSink()
	m := New(opts, sink, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	m.StartLogging("test.jsonl")
	ev := sink.next(t)
	require.Equal(t, model.SessionStart, ev.Type)
	return m, sink
}

func TestSessionStartCarriesLogFile(t *testing.T) {
	sink := newChanSink()
	m := New(testOptions(), sink, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	m.StartLogging("/tmp/run.jsonl")
	ev := sink.next(t)
	assert.Equal(t, model.SessionStart, ev.Type)
	assert.Equal(t, "/tmp/run.jsonl", ev.Data["log_file"])
	assert.Equal(t, m.SessionID(), ev.Data["session"])
}

func TestSessionStartPrecedesLaterEvents(t *testing.T) {
	sink := newChanSink()
	m := New(testOptions(), sink, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	// fed before logging starts: processed but never emitted
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/early",
		ResourceType: "XHR", Headers: traffic.Header{},
	})
	m.StartLogging("run.jsonl")
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/late",
		ResourceType: "XHR", Headers: traffic.Header{},
	})

	first := sink.next(t)
	assert.Equal(t, model.SessionStart, first.Type)
	second := sink.next(t)
	assert.Equal(t, model.NetworkRequest, second.Type)
	assert.Equal(t, "GET::https://x/late", second.Data["fingerprint"])
}

func TestRequestsRouteToProcessor(t *testing.T) {
	m, sink := startMonitor(t, testOptions())
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/api",
		ResourceType: "XHR", Headers: traffic.Header{},
	})
	ev := sink.next(t)
	assert.Equal(t, model.NetworkRequest, ev.Type)
	assert.Equal(t, "GET::https://x/api", ev.Data["fingerprint"])
}

func TestStaticResourcesBypassProcessor(t *testing.T) {
	m, sink := startMonitor(t, testOptions())
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://cdn/a.css",
		ResourceType: "Stylesheet", Headers: traffic.Header{},
	})
	// one static event: below the ceiling, nothing emitted yet
	sink.expectNone(t)

	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://cdn/b.js",
		ResourceType: "Script", Headers: traffic.Header{},
	})
	ev := sink.next(t)
	require.Equal(t, model.ResourceBundle, ev.Type)
	assert.Equal(t, []string{"https://cdn/a.css"}, ev.Data["stylesheets"])
	assert.Equal(t, []string{"https://cdn/b.js"}, ev.Data["scripts"])
}

func TestPeriodicFlush(t *testing.T) {
	opts := testOptions()
	opts.BundleInterval = 50 * time.Millisecond
	opts.BundleMaxItems = 100
	m, sink := startMonitor(t, opts)

	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://cdn/a.png",
		ResourceType: "Image", Headers: traffic.Header{},
	})
	ev := sink.next(t)
	assert.Equal(t, model.ResourceBundle, ev.Type)
	assert.Equal(t, []string{"https://cdn/a.png"}, ev.Data["images"])
}

func TestNavigationEmitsPageNavigation(t *testing.T) {
	m, sink := startMonitor(t, testOptions())
	m.Feed(model.RawEvent{Type: model.RawNavigation, NavigationURL: "https://x/home"})
	ev := sink.next(t)
	assert.Equal(t, model.PageNavigation, ev.Type)
	assert.Equal(t, "https://x/home", ev.Data["url"])
}

func TestResetSessionClearsBaselines(t *testing.T) {
	m, sink := startMonitor(t, testOptions())
	req := model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/api",
		ResourceType: "XHR", Headers: traffic.Header{},
	}

	m.Feed(req)
	require.Equal(t, model.NetworkRequest, sink.next(t).Type)

	before := m.SessionID()
	m.ResetSession()

	// previously-tracked fingerprint re-emits a fresh NETWORK_REQUEST
	m.Feed(req)
	ev := sink.next(t)
	assert.Equal(t, model.NetworkRequest, ev.Type)
	assert.NotEqual(t, before, m.SessionID())
}

func TestPauseGatesEmission(t *testing.T) {
	m, sink := startMonitor(t, testOptions())
	m.Pause()
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/api",
		ResourceType: "XHR", Headers: traffic.Header{},
	})
	sink.expectNone(t)

	m.Resume()
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/other",
		ResourceType: "XHR", Headers: traffic.Header{},
	})
	assert.Equal(t, model.NetworkRequest, sink.next(t).Type)
}

type faultySink struct {
	*chanSink
	failures int
}

func (s *faultySink) Write(ev model.LogEvent) {
	if ev.Type == model.UIClick {
		s.failures++
		panic("sink failure")
	}
	s.chanSink.Write(ev)
}

func TestHandlerFailureDoesNotKillLoop(t *testing.T) {
	inner := newChanSink()
	sink := &faultySink{chanSink: inner}
	m := New(testOptions(), sink, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	m.Resume()

	m.Feed(model.RawEvent{
		Type: model.RawClick, Timestamp: time.Now(),
		ElementDescriptor: `{"target_text":"boom"}`,
	})
	// the click handler panicked in the sink; the loop must keep going
	m.Feed(model.RawEvent{
		Type: model.RawRequest, Method: "GET", URL: "https://x/api",
		ResourceType: "XHR", Headers: traffic.Header{},
	})
	ev := inner.next(t)
	assert.Equal(t, model.NetworkRequest, ev.Type)
	assert.Equal(t, 1, sink.failures)
}
