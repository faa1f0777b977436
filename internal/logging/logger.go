package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RequestLog is a single API access log entry
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Service    string    `json:"service,omitempty"`
	Bytes      int64     `json:"bytes"`
}

// Logger writes access logs
type Logger struct {
	mu      sync.Mutex
	enabled bool
	out     io.Writer
	file    *os.File
	json    bool
}

var defaultLogger = &Logger{enabled: true, out: os.Stdout}

// Default returns the default access logger
func Default() *Logger {
	return defaultLogger
}

// SetOutput redirects access logs to a file in JSON lines format
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	l.out = f
	l.json = true
	return nil
}

// SetWriter sets the destination and format directly.
func (l *Logger) SetWriter(w io.Writer, asJSON bool) {
	l.mu.Lock()
	l.out = w
	l.json = asJSON
	l.mu.Unlock()
}

// SetEnabled toggles access logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Log writes one access log entry
func (l *Logger) Log(entry *RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || l.out == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.json {
		data, _ := json.Marshal(entry)
		l.out.Write(append(data, '\n'))
		return
	}

	svc := ""
	if entry.Service != "" {
		svc = " [" + entry.Service + "]"
	}
	fmt.Fprintf(l.out, "[request] %d %s %s %s %dms%s\n",
		entry.Status, entry.RequestID, entry.Method, entry.Path, entry.DurationMs, svc)
}

// Close closes the log file, if any
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.out = os.Stdout
		l.json = false
	}
}
