package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

func TestEncodeLineShape(t *testing.T) {
	ts := time.Date(2026, 8, 27, 10, 30, 0, 123456000, time.UTC)
	ev := model.LogEvent{
		Timestamp: ts,
		Type:      model.NetworkRequest,
		Data: map[string]any{
			"fingerprint": "GET::https://x/api",
			"requestId":   "42",
		},
	}
	line, err := EncodeLine(ev)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(line), "\n"))

	doc := gjson.ParseBytes(line)
	assert.Equal(t, "2026-08-27T10:30:00.123456", doc.Get("timestamp").String())
	assert.Equal(t, "NETWORK_REQUEST", doc.Get("type").String())
	assert.Equal(t, "GET::https://x/api", doc.Get("data.fingerprint").String())
	assert.Equal(t, "42", doc.Get("data.requestId").String())
}

func TestNewTargetPathLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONL(dir, 10, logger.NewNop())
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"no prefix", "", filepath.Join(dir, "20260827_090000.jsonl")},
		{"directory prefix", dir + "/sub/", filepath.Join(dir, "sub", "20260827_090000.jsonl")},
		{"filename prefix", "checkout", filepath.Join(dir, "checkout_20260827_090000.jsonl")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.targetPath(tt.prefix, now))
		})
	}
}

func TestWriteAppendsLines(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONL(dir, 10, logger.NewNop())
	path, err := s.NewTarget("")
	require.NoError(t, err)

	s.Write(model.NewLogEvent(model.SessionStart, map[string]any{"log_file": path}))
	s.Write(model.NewLogEvent(model.PageNavigation, map[string]any{"url": "https://x"}))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		types = append(types, gjson.Get(scanner.Text(), "type").String())
	}
	assert.Equal(t, []string{"SESSION_START", "PAGE_NAVIGATION"}, types)
}

func TestWriteWithoutTargetDrops(t *testing.T) {
	s := NewJSONL(t.TempDir(), 10, logger.NewNop())
	// must not panic or create files
	s.Write(model.NewLogEvent(model.UIClick, map[string]any{}))
	assert.Equal(t, "", s.Path())
}

func TestNewTargetSwitchesFile(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONL(dir, 10, logger.NewNop())
	first, err := s.NewTarget("a")
	require.NoError(t, err)
	s.Write(model.NewLogEvent(model.SessionStart, map[string]any{}))

	second, err := s.NewTarget("b")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	s.Write(model.NewLogEvent(model.SessionStart, map[string]any{}))
	require.NoError(t, s.Close())

	assert.Equal(t, second, s.Path())
	firstData, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(firstData), "\n"))
}

func TestFanoutDeliversInOrder(t *testing.T) {
	var a, b []model.LogEventType
	fan := NewFanout(
		writerFunc(func(ev model.LogEvent) { a = append(a, ev.Type) }),
		nil,
		writerFunc(func(ev model.LogEvent) { b = append(b, ev.Type) }),
	)
	fan.Write(model.NewLogEvent(model.UIClick, nil))
	fan.Write(model.NewLogEvent(model.NetworkDiff, nil))

	assert.Equal(t, []model.LogEventType{model.UIClick, model.NetworkDiff}, a)
	assert.Equal(t, a, b)
}

type writerFunc func(ev model.LogEvent)

func (f writerFunc) Write(ev model.LogEvent) { f(ev) }
