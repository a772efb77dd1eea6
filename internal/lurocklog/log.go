// Package lurocklog is a minimal leveled wrapper around an io.Writer, in the
// same spirit as golang-dep's log.Logger: no structured-logging framework,
// just prefixed lines, because the core never needs more than that.
package lurocklog

import (
	"fmt"
	"io"
	"os"
)

// Logger writes leveled, prefixed lines to an underlying io.Writer.
type Logger struct {
	out     io.Writer
	verbose bool
}

// New returns a Logger writing to w. When verbose is false, Debugf is a
// no-op.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{out: w, verbose: verbose}
}

// Default returns a Logger writing to os.Stderr.
func Default(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	fmt.Fprintf(l.out, "lurock: "+format+"\n", args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l.out, "lurock: warning: "+format+"\n", args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.out, "lurock: error: "+format+"\n", args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	fmt.Fprintf(l.out, "lurock: debug: "+format+"\n", args...)
}
