package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"gopkg.in/natefinch/lumberjack.v2"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// JSONL appends log events to the current log target, one JSON object
// per line, with size-based rotation. Best-effort, process-local: a
// failed write is logged and dropped, never surfaced to the core.
type JSONL struct {
	mu        sync.Mutex
	out       *lumberjack.Logger
	path      string
	dir       string
	maxSizeMB int
	log       logger.Logger
}

// NewJSONL creates a sink rooted at dir. No file is opened until
// NewTarget is called.
func NewJSONL(dir string, maxSizeMB int, l logger.Logger) *JSONL {
	if l == nil {
		l = logger.NewNop()
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &JSONL{dir: dir, maxSizeMB: maxSizeMB, log: l}
}

// NewTarget closes the current log file (if any) and opens a fresh one.
// An empty prefix lands in the sink's directory; a prefix ending in "/"
// is treated as a directory; anything else becomes a filename prefix.
func (s *JSONL) NewTarget(prefix string) (string, error) {
	path := s.targetPath(prefix, time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("sink: create log dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		_ = s.out.Close()
	}
	s.out = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    s.maxSizeMB,
		MaxBackups: 3,
	}
	s.path = path
	s.log.Info("log target created", "path", path)
	return path, nil
}

// Path returns the current log target, or "" before the first NewTarget.
func (s *JSONL) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Write appends one event line. The persisted shape is the replay
// contract: timestamp (ISO-8601 with microseconds), type, data.
func (s *JSONL) Write(ev model.LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		s.log.Warn("log event dropped, no log target", "type", string(ev.Type))
		return
	}
	line, err := EncodeLine(ev)
	if err != nil {
		s.log.Err(err, "log event encode failed", "type", string(ev.Type))
		return
	}
	if _, err := s.out.Write(line); err != nil {
		s.log.Err(err, "log event write failed", "path", s.path)
	}
}

// Close flushes and closes the current target.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}

// EncodeLine renders a log event as a newline-terminated JSON document.
func EncodeLine(ev model.LogEvent) ([]byte, error) {
	line := []byte(`{}`)
	line, err := sjson.SetBytes(line, "timestamp", ev.Timestamp.Format(model.TimestampLayout))
	if err != nil {
		return nil, err
	}
	line, err = sjson.SetBytes(line, "type", string(ev.Type))
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	line, err = sjson.SetRawBytes(line, "data", raw)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// targetPath reproduces the original log path layout:
// <stamp>.jsonl in dir, or prefix-qualified variants.
func (s *JSONL) targetPath(prefix string, now time.Time) string {
	filename := now.Format("20060102_150405") + ".jsonl"
	if prefix == "" {
		return filepath.Join(s.dir, filename)
	}
	if strings.HasSuffix(prefix, "/") {
		return filepath.Join(prefix, filename)
	}
	dir, base := filepath.Split(prefix)
	if dir == "" {
		dir = s.dir
	}
	return filepath.Join(dir, base+"_"+filename)
}
