package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and
// writes those lines to an underlying logger callback.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous
	// write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the
// end of a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. It has the property that it still
// functions if nil (all methods are no-ops), so components can accept a
// *Logger without needing to nil-check before every call. It is safe for
// concurrent use.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the minimum level at which this logger emits output.
	level Level
	// output is the underlying standard library logger.
	output *log.Logger
}

// NewLogger creates a new root logger at the specified level, writing to
// standard error.
func NewLogger(level Level) *Logger {
	return &Logger{
		level:  level,
		output: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Sublogger creates a new sublogger with the specified name appended to
// the receiver's prefix. If the receiver is nil, the sublogger is nil too.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		prefix: prefix,
		level:  l.level,
		output: l.output,
	}
}

// line formats a log line with the logger's prefix, if any.
func (l *Logger) line(message string) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s", l.prefix, message)
	}
	return message
}

// Print logs information at the informational level with semantics
// equivalent to fmt.Print.
func (l *Logger) Print(v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output.Output(3, l.line(fmt.Sprint(v...)))
	}
}

// Printf logs information at the informational level with semantics
// equivalent to fmt.Printf.
func (l *Logger) Printf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output.Output(3, l.line(fmt.Sprintf(format, v...)))
	}
}

// Println logs information at the informational level with semantics
// equivalent to fmt.Println.
func (l *Logger) Println(v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output.Output(3, l.line(fmt.Sprintln(v...)))
	}
}

// Writer returns an io.Writer that writes complete lines using Println.
func (l *Logger) Writer() io.Writer {
	if l == nil || l.level < LevelInfo {
		return io.Discard
	}
	return &writer{callback: l.Println2}
}

// Println2 exists so Writer can reference a single-argument callback
// without an intermediate closure allocation on the hot path.
func (l *Logger) Println2(s string) {
	l.Println(s)
}

// Debug logs information at the debug level with semantics equivalent to
// fmt.Print.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && l.level >= LevelDebug {
		l.output.Output(3, l.line(fmt.Sprint(v...)))
	}
}

// Debugf logs information at the debug level with semantics equivalent to
// fmt.Printf.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelDebug {
		l.output.Output(3, l.line(fmt.Sprintf(format, v...)))
	}
}

// Warn logs a warning in yellow, prefixed accordingly. Warnings are used
// for recoverable conditions such as an unreadable prior index, a
// cross-device hardlink fallback, or an auto-reclaim failure.
func (l *Logger) Warn(err error) {
	if l != nil && l.level >= LevelWarn {
		l.output.Output(3, l.line(color.YellowString("warning: %v", err)))
	}
}

// Error logs error information in red, prefixed accordingly.
func (l *Logger) Error(err error) {
	if l != nil && l.level >= LevelError {
		l.output.Output(3, l.line(color.RedString("error: %v", err)))
	}
}
