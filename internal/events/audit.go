package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the audit log.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
)

// LogEntry is one line of the JSONL audit log.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Command   string                 `json:"command,omitempty"`
	FilePath  string                 `json:"file_path,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger appends lifecycle events to a rotating JSONL file.
type AuditLogger struct {
	mu      sync.Mutex
	w       io.WriteCloser
	logPath string
	unsub   func()
}

// NewAuditLogger opens (creating as needed) the audit log at logPath.
func NewAuditLogger(logPath string, maxSizeMB, maxBackups int) (*AuditLogger, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	return newAuditLogger(logPath, &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}), nil
}

func newAuditLogger(logPath string, w io.WriteCloser) *AuditLogger {
	return &AuditLogger{w: w, logPath: logPath}
}

// Attach subscribes the logger to every event type on bus.
func (l *AuditLogger) Attach(bus *Bus) {
	l.unsub = bus.SubscribeAll(func(e Event) {
		_ = l.Record(e)
	})
}

// Record writes e as one JSON line.
func (l *AuditLogger) Record(e Event) error {
	entry := LogEntry{
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		Command:   String(e.Data, KeyCommand),
		FilePath:  String(e.Data, KeyFilePath),
		Details:   e.Data,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Path returns the audit log location.
func (l *AuditLogger) Path() string {
	return l.logPath
}

// Close detaches from the bus and closes the file.
func (l *AuditLogger) Close() error {
	if l.unsub != nil {
		l.unsub()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
