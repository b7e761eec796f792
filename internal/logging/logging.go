// Package logging wraps the standard logger with level filtering shared by
// the engine, store, and HTTP layers.
package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger filters by level and prefixes entries with a timestamp, level, and
// component name. The level may be swapped at runtime (config reload).
type Logger struct {
	out       *log.Logger
	component string
	level     *atomic.Int32
}

func New(out *log.Logger, component string, level Level) *Logger {
	l := &Logger{out: out, component: component, level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

// SetLevel changes the filter level. Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Component returns a logger sharing the same output and level filter under
// a different component name. SetLevel on any of them applies to all.
func (l *Logger) Component(name string) *Logger {
	return &Logger{out: l.out, component: name, level: l.level}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if int32(level) < l.level.Load() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, l.component, msg)
}
