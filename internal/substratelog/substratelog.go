// Package substratelog is a thin wrapper over the standard library
// logger giving every component a consistent [COMPONENT] prefix, the
// same convention used throughout the rest of the codebase (e.g.
// "[NATS-BRIDGE]", "[CLEANUP]", "[DISPATCH]").
package substratelog

import (
	"io"
	"log"
	"os"
	"strings"
)

// Logger prefixes every line with a bracketed component tag.
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a Logger tagging every line "[<component>] ". component
// is upper-cased to match the convention observed across the rest of
// the codebase.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter is New with an explicit output writer, for tests that
// need to capture log output.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		component: strings.ToUpper(component),
		std:       log.New(w, "", log.LstdFlags),
	}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	l.std.Printf("["+l.component+"] "+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	l.std.Println(append([]interface{}{"[" + l.component + "]"}, args...)...)
}

// Errorf logs an error-level line, prefixed with "ERROR:" the way the
// rest of the codebase marks error conditions within a bracketed
// component tag (e.g. "[NATS-BRIDGE] ERROR: ...").
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.std.Printf("["+l.component+"] ERROR: "+format, args...)
}

// With returns a child logger nesting a sub-component tag, e.g.
// New("dispatch").With("timeout") logs as "[DISPATCH-TIMEOUT]".
func (l *Logger) With(sub string) *Logger {
	return &Logger{
		component: l.component + "-" + strings.ToUpper(sub),
		std:       l.std,
	}
}
