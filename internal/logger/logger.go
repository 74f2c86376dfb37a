// Package logger provides the levelled console logger shared by the search
// engine, the worker pool and the CLI.
//
// Output is one line per message, prefixed with a [HH:MM:SS] timestamp and the
// level. Levels are coloured when the destination is a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger is the logging surface accepted by library packages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level is a message severity. Higher values are more severe.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel converts a case-insensitive level name. Empty or unknown names
// yield LevelInfo and false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// ConsoleLogger writes timestamped messages to a writer. It is safe for
// concurrent use.
type ConsoleLogger struct {
	writer      io.Writer
	level       Level
	colorOutput bool
	clock       func() time.Time

	mu sync.Mutex
}

// NewConsoleLogger creates a logger writing messages at or above level to w.
// A nil writer discards everything. Colour is enabled only for terminals and
// honours NO_COLOR through fatih/color.
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	lvl, _ := ParseLevel(level)
	return &ConsoleLogger{
		writer:      w,
		level:       lvl,
		colorOutput: IsTerminal(w),
		clock:       time.Now,
	}
}

// IsTerminal reports whether w is a terminal that should receive colour.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether messages at level would be written.
func (cl *ConsoleLogger) Enabled(level Level) bool {
	return cl.writer != nil && level >= cl.level
}

func (cl *ConsoleLogger) Tracef(format string, args ...any) { cl.logf(LevelTrace, format, args...) }
func (cl *ConsoleLogger) Debugf(format string, args ...any) { cl.logf(LevelDebug, format, args...) }
func (cl *ConsoleLogger) Infof(format string, args ...any)  { cl.logf(LevelInfo, format, args...) }
func (cl *ConsoleLogger) Warnf(format string, args ...any)  { cl.logf(LevelWarn, format, args...) }
func (cl *ConsoleLogger) Errorf(format string, args ...any) { cl.logf(LevelError, format, args...) }

func (cl *ConsoleLogger) logf(level Level, format string, args ...any) {
	if !cl.Enabled(level) {
		return
	}

	message := fmt.Sprintf(format, args...)
	label := level.String()
	if cl.colorOutput {
		label = levelColor(level).Sprint(label)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	_, _ = fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", cl.clock().Format("15:04:05"), label, message)
}

func levelColor(level Level) *color.Color {
	switch level {
	case LevelTrace:
		return color.New(color.FgHiBlack)
	case LevelDebug:
		return color.New(color.FgCyan)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
