package cdp

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"

	"devpipe/pkg/model"
	"devpipe/pkg/traffic"
)

// scannerSentinel prefixes click descriptors reported by the injected
// scanner through the console stream.
const scannerSentinel = "__UI_SCANNER_DATA__"

// snapshotRequest captures a CDP request reply as a neutral request
// snapshot. The snapshot is the transport's unit of memory: the request
// index holds it so the matching response can fingerprint identically.
func snapshotRequest(ev *network.RequestWillBeSentReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method
	req.Headers = toNeutralHeaders(ev.Request.Headers)
	req.ResourceType = string(ev.Type)
	if ev.Request.PostData != nil {
		req.Body = *ev.Request.PostData
	}
	return req
}

// snapshotResponse captures a CDP response reply as a neutral response
// snapshot.
func snapshotResponse(ev *network.ResponseReceivedReply) *traffic.Response {
	resp := traffic.NewResponse()
	resp.StatusCode = ev.Response.Status
	resp.MimeType = ev.Response.MimeType
	resp.Headers = toNeutralHeaders(ev.Response.Headers)
	return resp
}

// requestEvent maps a request snapshot into the raw event fed to the core.
func requestEvent(req *traffic.Request) model.RawEvent {
	return model.RawEvent{
		Type:         model.RawRequest,
		Timestamp:    time.Now(),
		RequestID:    req.ID,
		ResourceType: req.ResourceType,
		Method:       req.Method,
		URL:          req.URL,
		Headers:      req.Headers,
		Body:         req.Body,
	}
}

// responseEvent maps a CDP response reply into the raw event fed to the
// core. Method and URL come from the indexed request snapshot so the
// response lands on the same fingerprint as its request.
func responseEvent(ev *network.ResponseReceivedReply, idx *requestIndex) model.RawEvent {
	resp := snapshotResponse(ev)
	out := model.RawEvent{
		Type:         model.RawResponse,
		Timestamp:    time.Now(),
		RequestID:    string(ev.RequestID),
		ResourceType: string(ev.Type),
		URL:          ev.Response.URL,
		Status:       resp.StatusCode,
		MimeType:     resp.MimeType,
		Headers:      resp.Headers,
	}
	if req := idx.lookup(string(ev.RequestID)); req != nil {
		out.Method = req.Method
		out.URL = req.URL
	}
	return out
}

// toNeutralHeaders parses raw CDP headers into the lowercase-keyed
// neutral Header map.
func toNeutralHeaders(raw network.Headers) traffic.Header {
	h := make(traffic.Header)
	if len(raw) == 0 {
		return h
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return h
	}
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// clickDescriptor extracts the scanner payload from a console call, or
// returns false when the call is not a scanner report.
func clickDescriptor(ev *runtime.ConsoleAPICalledReply) (string, bool) {
	if len(ev.Args) == 0 || len(ev.Args[0].Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(ev.Args[0].Value, &s); err != nil {
		return "", false
	}
	if !strings.HasPrefix(s, scannerSentinel) {
		return "", false
	}
	return strings.TrimPrefix(s, scannerSentinel), true
}

// requestIndex remembers the request snapshot per in-flight request id.
// Bounded; oldest entries are evicted first.
type requestIndex struct {
	mu    sync.Mutex
	max   int
	order []string
	byID  map[string]*traffic.Request
}

func newRequestIndex(max int) *requestIndex {
	if max <= 0 {
		max = 2048
	}
	return &requestIndex{max: max, byID: make(map[string]*traffic.Request)}
}

func (x *requestIndex) remember(req *traffic.Request) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byID[req.ID]; !ok {
		x.order = append(x.order, req.ID)
	}
	x.byID[req.ID] = req
	for len(x.order) > x.max {
		delete(x.byID, x.order[0])
		x.order = x.order[1:]
	}
}

func (x *requestIndex) lookup(id string) *traffic.Request {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.byID[id]
}

func (x *requestIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.order = nil
	x.byID = make(map[string]*traffic.Request)
}
