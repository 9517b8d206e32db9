// Package logger provides console output for drover runs.
//
// The console logger prints task, tool and command progress with level
// filtering. Color output is enabled automatically when writing to a
// terminal and suppressed for pipes and files.
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

// Log level constants for filtering.
const (
	levelDebug int = 0
	levelInfo  int = 1
	levelWarn  int = 2
	levelError int = 3
)

// ConsoleLogger logs run progress to a writer with level filtering and
// thread safety.
type ConsoleLogger struct {
	writer io.Writer
	level  int
	mutex  sync.Mutex
	color  bool
}

// NewConsoleLogger creates a ConsoleLogger writing to w. level is one of
// debug, info, warn, error (case-insensitive); empty or invalid levels
// default to info. If w is nil, messages are discarded.
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer: w,
		level:  parseLevel(level),
		color:  isTerminal(w),
	}
}

// parseLevel maps a level name to its numeric rank, defaulting to info.
func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// isTerminal reports whether w is a TTY that supports color. NO_COLOR is
// honored through the color library.
func isTerminal(w io.Writer) bool {
	f, isFile := w.(*os.File)
	if !isFile {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// write prints one timestamped line when the message level passes the
// filter.
func (cl *ConsoleLogger) write(level int, line string) {
	if cl.writer == nil || level < cl.level {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprintf(cl.writer, "[%s] %s\n", time.Now().Format("15:04:05"), line)
}

// paint applies a color when the writer is a terminal.
func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.color {
		return s
	}
	return c.Sprint(s)
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.write(levelDebug, fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.write(levelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warn-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.write(levelWarn, cl.paint(color.New(color.FgYellow), fmt.Sprintf(format, args...)))
}

// Errorf logs an error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.write(levelError, cl.paint(color.New(color.FgRed), fmt.Sprintf(format, args...)))
}

// Toolf logs the start of a tool within a task.
func (cl *ConsoleLogger) Toolf(name string, pkg string) {
	cl.write(levelInfo, cl.paint(color.New(color.FgBlue), fmt.Sprintf("  TOOL %s (%s)", name, pkg)))
}

// Commandf logs a command line about to run.
func (cl *ConsoleLogger) Commandf(line string) {
	cl.write(levelInfo, "    $ "+line)
}
