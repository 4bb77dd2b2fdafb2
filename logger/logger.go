// Package logger is the SDK's leveled logger. Messages carry a short prefix
// identifying the component (session, manager, sim) so interleaved output
// from concurrent drains stays readable.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Level is the severity of a log message.
type Level int

const (
	LevelTrace Level = iota // chunk-by-chunk wire detail
	LevelDebug              // framing decisions, state transitions
	LevelInfo               // connections, completed writes
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO "
	case LevelWarn:
		return "WARN "
	case LevelError:
		return "ERROR"
	default:
		return "?????"
	}
}

var (
	mu      sync.RWMutex
	current           = LevelInfo
	output  io.Writer = os.Stdout
)

// SetLevel sets the global log level.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	current = level
}

// GetLevel returns the current log level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// ParseLevel converts a string such as "debug" to a Level. Unknown strings
// map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func logf(level Level, prefix, format string, args ...interface{}) {
	if level < GetLevel() {
		return
	}

	msg := fmt.Sprintf(format, args...)
	mu.RLock()
	w := output
	mu.RUnlock()
	if prefix != "" {
		fmt.Fprintf(w, "[%s %s] %s\n", prefix, level, msg)
	} else {
		fmt.Fprintf(w, "[%s] %s\n", level, msg)
	}
}

// Trace logs chunk-level wire detail.
func Trace(prefix, format string, args ...interface{}) {
	logf(LevelTrace, prefix, format, args...)
}

// Debug logs framing decisions and state transitions.
func Debug(prefix, format string, args ...interface{}) {
	logf(LevelDebug, prefix, format, args...)
}

// Info logs high-level events such as connections and completed writes.
func Info(prefix, format string, args ...interface{}) {
	logf(LevelInfo, prefix, format, args...)
}

// Warn logs a warning.
func Warn(prefix, format string, args ...interface{}) {
	logf(LevelWarn, prefix, format, args...)
}

// Error logs an error.
func Error(prefix, format string, args ...interface{}) {
	logf(LevelError, prefix, format, args...)
}

// ToJSON renders a value as indented JSON for logging. Protobuf messages go
// through protojson so field names match the schema.
func ToJSON(v interface{}) string {
	if msg, ok := v.(proto.Message); ok {
		marshaler := protojson.MarshalOptions{
			Multiline: true,
			Indent:    "  ",
		}
		out, err := marshaler.Marshal(msg)
		if err != nil {
			return fmt.Sprintf("<error: %v>", err)
		}
		return string(out)
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(out)
}

// DebugJSON logs a labeled JSON rendering of v at debug level.
func DebugJSON(prefix, label string, v interface{}) {
	if GetLevel() > LevelDebug {
		return
	}
	logf(LevelDebug, prefix, "%s:\n%s", label, ToJSON(v))
}
