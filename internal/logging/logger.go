// Package logging provides structured JSON logging with secret redaction for
// the realm gateway.
package logging

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

// Log severity levels.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// LogFormat represents the output format for log entries.
type LogFormat string

// Log output formats.
const (
	// FormatJSON writes one JSON object per line (default).
	FormatJSON LogFormat = "json"
	// FormatHuman writes "[time] level: message key=value ..." lines.
	FormatHuman LogFormat = "human"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Logger provides structured logging with secret redaction. Error entries go
// to stderr, everything else to stdout.
type Logger struct {
	level    LogLevel
	format   LogFormat
	redactor *Redactor

	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

type logEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ParseLevel converts a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch l := LogLevel(strings.ToLower(s)); l {
	case LevelDebug, LevelWarn, LevelError:
		return l
	default:
		return LevelInfo
	}
}

// New creates a Logger writing to os.Stdout and os.Stderr.
func New(level LogLevel, format LogFormat) *Logger {
	return &Logger{
		level:    level,
		format:   format,
		redactor: NewRedactor(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	l := New(LevelError, FormatJSON)
	l.SetOutput(io.Discard, io.Discard)
	return l
}

// SetOutput replaces the output writers.
func (l *Logger) SetOutput(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = stdout
	l.stderr = stderr
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level.rank() >= l.level.rank()
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(LevelDebug, msg, fields)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs a warn-level message.
func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(LevelWarn, msg, fields)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level LogLevel, msg string, fields []map[string]any) {
	if !l.Enabled(level) {
		return
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(timestampLayout),
		Level:     string(level),
		Message:   msg,
		Fields:    l.prepare(mergeFields(fields...)),
	}

	var line []byte
	if l.format == FormatHuman {
		line = formatHuman(entry)
	} else {
		line = formatJSON(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.stdout
	if level == LevelError {
		w = l.stderr
	}
	_, _ = w.Write(line)
}

// prepare redacts sensitive keys and turns protocol values into printable
// form: byte slices become hex, errors and Stringers become strings.
func (l *Logger) prepare(fields map[string]any) map[string]any {
	fields = l.redactor.RedactFields(fields)
	for k, v := range fields {
		switch val := v.(type) {
		case []byte:
			fields[k] = hex.EncodeToString(val)
		case error:
			fields[k] = l.redactor.RedactString(val.Error())
		case fmt.Stringer:
			fields[k] = val.String()
		}
	}
	return fields
}

func formatJSON(entry logEntry) []byte {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Appendf(nil, `{"timestamp":%q,"level":"error","message":"failed to marshal log entry: %s"}`+"\n",
			entry.Timestamp, err.Error())
	}
	return append(data, '\n')
}

func formatHuman(entry logEntry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", entry.Timestamp, entry.Level, entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Fields)) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func mergeFields(fields ...map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	merged := make(map[string]any)
	for _, f := range fields {
		maps.Copy(merged, f)
	}
	return merged
}

// WithFields returns a logger that adds fields to every entry.
func (l *Logger) WithFields(fields map[string]any) *ContextLogger {
	return &ContextLogger{logger: l, fields: fields}
}

// ForConnection returns the logger for one client connection.
func (l *Logger) ForConnection(connID, remoteAddr string) *ContextLogger {
	return l.WithFields(map[string]any{
		"conn_id":     connID,
		"remote_addr": remoteAddr,
	})
}

// ContextLogger is a Logger bound to a set of fields.
type ContextLogger struct {
	logger *Logger
	fields map[string]any
}

// WithFields returns a child logger carrying both field sets.
func (cl *ContextLogger) WithFields(fields map[string]any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger,
		fields: mergeFields(cl.fields, fields),
	}
}

func (cl *ContextLogger) with(fields []map[string]any) []map[string]any {
	return append([]map[string]any{cl.fields}, fields...)
}

// Debug logs a debug-level message with the bound fields.
func (cl *ContextLogger) Debug(msg string, fields ...map[string]any) {
	cl.logger.log(LevelDebug, msg, cl.with(fields))
}

// Info logs an info-level message with the bound fields.
func (cl *ContextLogger) Info(msg string, fields ...map[string]any) {
	cl.logger.log(LevelInfo, msg, cl.with(fields))
}

// Warn logs a warn-level message with the bound fields.
func (cl *ContextLogger) Warn(msg string, fields ...map[string]any) {
	cl.logger.log(LevelWarn, msg, cl.with(fields))
}

// Error logs an error-level message with the bound fields.
func (cl *ContextLogger) Error(msg string, fields ...map[string]any) {
	cl.logger.log(LevelError, msg, cl.with(fields))
}
