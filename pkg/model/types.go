package model

import (
	"time"

	"devpipe/pkg/traffic"
)

type SessionID string
type TargetID string

// RawEventType discriminates events delivered by the transport.
type RawEventType string

const (
	RawRequest    RawEventType = "request"
	RawResponse   RawEventType = "response"
	RawClick      RawEventType = "click"
	RawNavigation RawEventType = "navigation"
	RawReset      RawEventType = "reset"
	RawStart      RawEventType = "start"
)

// RawEvent is the abstract tagged record crossing the transport/core
// boundary. The core never parses protocol wire format; missing fields
// stay zero-valued and are normalized to an explicit absent marker.
type RawEvent struct {
	Type              RawEventType
	Timestamp         time.Time
	RequestID         string
	ResourceType      string
	Method            string
	URL               string
	Headers           traffic.Header
	Body              string
	Status            int
	MimeType          string
	ElementDescriptor string
	NavigationURL     string
	LogPath           string
}

// LogEventType enumerates the persisted event union.
type LogEventType string

const (
	SessionStart   LogEventType = "SESSION_START"
	NetworkRequest LogEventType = "NETWORK_REQUEST"
	NetworkDiff    LogEventType = "NETWORK_DIFF"
	ResourceBundle LogEventType = "RESOURCE_BUNDLE"
	UIClick        LogEventType = "UI_CLICK"
	PageNavigation LogEventType = "PAGE_NAVIGATION"
)

// TimestampLayout is the persisted ISO-8601 timestamp with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// LogEvent is the only artifact crossing the core/sink boundary.
// Immutable once constructed.
type LogEvent struct {
	Timestamp time.Time
	Type      LogEventType
	Data      map[string]any
}

// NewLogEvent stamps a log event with the current time.
func NewLogEvent(t LogEventType, data map[string]any) LogEvent {
	return LogEvent{Timestamp: time.Now(), Type: t, Data: data}
}

// SessionConfig carries the transport-level session parameters.
type SessionConfig struct {
	DevToolsURL      string `json:"devToolsURL"`
	ProcessTimeoutMS int    `json:"processTimeoutMS"`
	ReconnectDelayMS int    `json:"reconnectDelayMS"`
}

// TargetInfo describes an attachable browser target.
type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}
