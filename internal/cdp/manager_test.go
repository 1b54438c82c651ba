package cdp

import (
	"testing"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpipe/pkg/model"
)

func TestNewAppliesSessionConfigDefaults(t *testing.T) {
	m := New(model.SessionConfig{DevToolsURL: "http://127.0.0.1:9222"}, nil, nil)
	assert.Equal(t, 2*time.Second, m.reconnectDelay)
	assert.Equal(t, 10*time.Second, m.preflightWithin)
}

func TestNewUsesConfiguredTimings(t *testing.T) {
	m := New(model.SessionConfig{
		DevToolsURL:      "http://127.0.0.1:9222",
		ProcessTimeoutMS: 3000,
		ReconnectDelayMS: 500,
	}, nil, nil)
	assert.Equal(t, 500*time.Millisecond, m.reconnectDelay)
	assert.Equal(t, 3*time.Second, m.preflightWithin)
}

func browserTargets() []*devtool.Target {
	return []*devtool.Target{
		{ID: "A1", Type: devtool.Page, Title: "Shop", URL: "https://shop.example.com"},
		{ID: "B2", Type: devtool.BackgroundPage, Title: "Extension", URL: "chrome-extension://x"},
		{ID: "C3", Type: devtool.Page, Title: "Docs", URL: "https://docs.example.com"},
	}
}

func TestFindTargetMatchesPagesOnly(t *testing.T) {
	targets := browserTargets()

	got := findTarget(targets, "C3")
	require.NotNil(t, got)
	assert.Equal(t, "Docs", got.Title)

	// non-page targets cannot be attached
	assert.Nil(t, findTarget(targets, "B2"))
	assert.Nil(t, findTarget(targets, "nope"))
}

func TestToTargetInfosMarksCurrent(t *testing.T) {
	infos := toTargetInfos(browserTargets(), "A1")
	require.Len(t, infos, 3)
	assert.Equal(t, model.TargetID("A1"), infos[0].ID)
	assert.True(t, infos[0].IsCurrent)
	assert.False(t, infos[1].IsCurrent)
	assert.False(t, infos[2].IsCurrent)
	assert.Equal(t, "page", infos[0].Type)
	assert.Equal(t, "https://docs.example.com", infos[2].URL)
}

func TestToTargetInfosNoCurrentBeforeAttach(t *testing.T) {
	for _, info := range toTargetInfos(browserTargets(), "") {
		assert.False(t, info.IsCurrent)
	}
}
