package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// Core is the event-processing engine the transport feeds. ResetSession
// is called after every reconnect so per-session state never survives a
// session discontinuity.
type Core interface {
	Feed(ev model.RawEvent)
	ResetSession()
}

// Manager owns the DevTools connection: pre-flight check, target
// attachment, event stream consumption and reconnection.
type Manager struct {
	devtoolsURL     string
	core            Core
	log             logger.Logger
	reconnectDelay  time.Duration
	preflightWithin time.Duration
	requests        *requestIndex
	onAttach        []func(context.Context, *cdp.Client)

	mu        sync.Mutex
	conn      *rpcc.Conn
	currentID string
	preferred string
}

// New creates a transport manager from the session configuration.
// Zero durations fall back to defaults.
func New(sc model.SessionConfig, core Core, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	delay := time.Duration(sc.ReconnectDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 2 * time.Second
	}
	within := time.Duration(sc.ProcessTimeoutMS) * time.Millisecond
	if within <= 0 {
		within = 10 * time.Second
	}
	return &Manager{
		devtoolsURL:     sc.DevToolsURL,
		core:            core,
		log:             l,
		reconnectDelay:  delay,
		preflightWithin: within,
		requests:        newRequestIndex(2048),
	}
}

// OnAttach registers a hook invoked after every successful attach, with
// the live client. Used for optional per-session setup such as the
// WebRTC privacy toggle.
func (m *Manager) OnAttach(fn func(context.Context, *cdp.Client)) {
	m.onAttach = append(m.onAttach, fn)
}

// Preflight verifies the browser's debugging endpoint is reachable
// before any attach attempt. Bounded by the configured process timeout.
func (m *Manager) Preflight(ctx context.Context) (*devtool.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, m.preflightWithin)
	defer cancel()
	dt := devtool.New(m.devtoolsURL)
	v, err := dt.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf(
			"browser not reachable at %s (is it running with --remote-debugging-port?): %w",
			m.devtoolsURL, err)
	}
	m.log.Info("located browser", "browser", v.Browser, "protocol", v.Protocol)
	return v, nil
}

// ListTargets enumerates attachable targets, marking the one the
// session is currently attached to.
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	m.mu.Lock()
	current := m.currentID
	m.mu.Unlock()
	return toTargetInfos(targets, current), nil
}

// SwitchTarget moves the session to the page target with the given id.
// The current connection is closed; the reconnect loop re-attaches to
// the preferred target, resetting the core's session state on the way.
func (m *Manager) SwitchTarget(ctx context.Context, id string) error {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	t := findTarget(targets, id)
	if t == nil {
		return fmt.Errorf("no page target with id %q", id)
	}
	m.mu.Lock()
	m.preferred = t.ID
	conn := m.conn
	m.mu.Unlock()
	m.log.Info("switching target", "id", t.ID, "title", t.Title)
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// Run keeps a monitoring session alive until ctx is canceled,
// reconnecting with a fixed delay. A reconnect resets the core's
// per-session state before any event from the new session is delivered.
func (m *Manager) Run(ctx context.Context) error {
	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn("session ended, scheduling reconnect", "error", err, "delay", m.reconnectDelay.String())
		m.requests.reset()
		m.core.ResetSession()
		select {
		case <-time.After(m.reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session attaches to a page target, subscribes the event streams,
// enables the protocol domains and consumes until a stream fails.
func (m *Manager) session(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, c, err := m.attach(sctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	// subscribe before enabling so no early event is missed
	reqs, err := c.Network.RequestWillBeSent(sctx)
	if err != nil {
		return fmt.Errorf("subscribe requests: %w", err)
	}
	defer reqs.Close()
	resps, err := c.Network.ResponseReceived(sctx)
	if err != nil {
		return fmt.Errorf("subscribe responses: %w", err)
	}
	defer resps.Close()
	navs, err := c.Page.FrameNavigated(sctx)
	if err != nil {
		return fmt.Errorf("subscribe navigations: %w", err)
	}
	defer navs.Close()
	consoles, err := c.Runtime.ConsoleAPICalled(sctx)
	if err != nil {
		return fmt.Errorf("subscribe console: %w", err)
	}
	defer consoles.Close()

	if err := c.Network.Enable(sctx, nil); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	if err := c.Page.Enable(sctx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := c.Runtime.Enable(sctx); err != nil {
		return fmt.Errorf("enable runtime domain: %w", err)
	}
	if err := m.injectScanner(sctx, c); err != nil {
		// clicks degrade, network monitoring still works
		m.log.Warn("click scanner injection failed", "error", err)
	}
	for _, fn := range m.onAttach {
		fn(sctx, c)
	}
	m.log.Info("event listeners attached", "devtools", m.devtoolsURL)

	errc := make(chan error, 4)
	go m.consumeRequests(reqs, errc)
	go m.consumeResponses(resps, errc)
	go m.consumeNavigations(navs, errc)
	go m.consumeConsole(consoles, errc)

	select {
	case err := <-errc:
		return err
	case <-sctx.Done():
		return sctx.Err()
	}
}

// attach dials the preferred target when one is set and still alive,
// otherwise the first available page target, creating one when the
// browser has none.
func (m *Manager) attach(ctx context.Context) (*rpcc.Conn, *cdp.Client, error) {
	dt := devtool.New(m.devtoolsURL)

	var t *devtool.Target
	m.mu.Lock()
	preferred := m.preferred
	m.mu.Unlock()
	if preferred != "" {
		if targets, err := dt.List(ctx); err == nil {
			t = findTarget(targets, preferred)
		}
		if t == nil {
			m.log.Warn("preferred target gone, attaching to first page", "id", preferred)
		}
	}
	if t == nil {
		var err error
		t, err = dt.Get(ctx, devtool.Page)
		if err != nil {
			t, err = dt.Create(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("no page target: %w", err)
			}
		}
	}

	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", t.WebSocketDebuggerURL, err)
	}
	client := cdp.NewClient(conn)
	m.mu.Lock()
	m.conn = conn
	m.currentID = t.ID
	m.mu.Unlock()
	m.log.Info("attached to target", "title", t.Title, "url", t.URL)
	return conn, client, nil
}

// injectScanner installs the click scanner for future documents and
// evaluates it in the current one.
func (m *Manager) injectScanner(ctx context.Context, c *cdp.Client) error {
	_, err := c.Page.AddScriptToEvaluateOnNewDocument(ctx,
		page.NewAddScriptToEvaluateOnNewDocumentArgs(clickScannerScript))
	if err != nil {
		return err
	}
	_, err = c.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(clickScannerScript))
	return err
}

func (m *Manager) consumeRequests(stream network.RequestWillBeSentClient, errc chan<- error) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			errc <- err
			return
		}
		req := snapshotRequest(ev)
		m.requests.remember(req)
		m.core.Feed(requestEvent(req))
	}
}

func (m *Manager) consumeResponses(stream network.ResponseReceivedClient, errc chan<- error) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			errc <- err
			return
		}
		m.core.Feed(responseEvent(ev, m.requests))
	}
}

func (m *Manager) consumeNavigations(stream page.FrameNavigatedClient, errc chan<- error) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			errc <- err
			return
		}
		url := ev.Frame.URL
		if url == "" || strings.HasPrefix(url, "about:") {
			continue
		}
		m.core.Feed(model.RawEvent{
			Type:          model.RawNavigation,
			Timestamp:     time.Now(),
			NavigationURL: url,
		})
	}
}

func (m *Manager) consumeConsole(stream runtime.ConsoleAPICalledClient, errc chan<- error) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			errc <- err
			return
		}
		descriptor, ok := clickDescriptor(ev)
		if !ok {
			continue
		}
		m.core.Feed(model.RawEvent{
			Type:              model.RawClick,
			Timestamp:         time.Now(),
			ElementDescriptor: descriptor,
		})
	}
}

// findTarget returns the page target with the given id, or nil.
func findTarget(targets []*devtool.Target, id string) *devtool.Target {
	for _, t := range targets {
		if t.ID == id && t.Type == devtool.Page {
			return t
		}
	}
	return nil
}

// toTargetInfos maps devtool targets into the neutral model, marking
// the currently attached one.
func toTargetInfos(targets []*devtool.Target, currentID string) []model.TargetInfo {
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.TargetInfo{
			ID:        model.TargetID(t.ID),
			Type:      string(t.Type),
			URL:       t.URL,
			Title:     t.Title,
			IsCurrent: currentID != "" && t.ID == currentID,
		})
	}
	return out
}
