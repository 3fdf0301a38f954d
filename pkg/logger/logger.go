// Package logger provides structured logging utilities.
//
// Entries are JSON lines of the form
//
//	{"level":"INFO","time":"2024-01-01T12:00:00Z","key":"value","msg":"..."}
//
// with fields sorted by key. The level, time and msg fields are written by
// this package, so zerolog's package-level settings are neither used nor
// changed.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a structured JSON logger backed by zerolog.
type Logger struct {
	zl     zerolog.Logger
	level  Level
	fields map[string]interface{}
	now    func() time.Time
}

// New creates a new Logger with the specified output and level. Writes to
// output are serialised, so it need not be safe for concurrent use.
func New(output io.Writer, level string) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		zl:    zerolog.New(zerolog.SyncWriter(output)),
		level: ParseLevel(level),
		now:   time.Now,
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), now: time.Now}
}

// With returns a new Logger with additional fields. Pairs with a non-string
// key are skipped.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	child := *l
	child.fields = merge(l.fields, keyvals)
	return &child
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(LevelDebug, msg, keyvals)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(LevelInfo, msg, keyvals)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(LevelWarn, msg, keyvals)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(LevelError, msg, keyvals)
}

func (l *Logger) log(level Level, msg string, keyvals []interface{}) {
	if level < l.level {
		return
	}
	// Log returns nil when the underlying logger is disabled.
	e := l.zl.Log()
	if e == nil {
		return
	}
	e.Str("level", level.String()).
		Str("time", l.now().UTC().Format(time.RFC3339)).
		Fields(merge(l.fields, keyvals)).
		Str("msg", msg).
		Send()
}

// merge copies base and adds keyvals over it. A trailing key without a value
// is dropped.
func merge(base map[string]interface{}, keyvals []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(keyvals)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok {
			out[key] = keyvals[i+1]
		}
	}
	return out
}
