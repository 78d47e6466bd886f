package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the leveled logger shared by the engine, binders and CLI.
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func New(prefix string, debug bool) *DefaultLogger {
	return NewWithWriters(prefix, debug, os.Stdout, os.Stderr)
}

// NewWithWriters routes info/debug to out and warn/error to errOut.
func NewWithWriters(prefix string, debug bool, out, errOut io.Writer) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(out, "", flags),
		err:    log.New(errOut, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

type nopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool                { return false }
func (nopLogger) SetDebug(enabled bool)             {}
func (nopLogger) Debugf(format string, args ...any) {}
func (nopLogger) Infof(format string, args ...any)  {}
func (nopLogger) Warnf(format string, args ...any)  {}
func (nopLogger) Errorf(format string, args ...any) {}

// Recorder keeps every message in memory. Tests use it to assert on
// warnings and errors without scraping stderr.
type Recorder struct {
	mu      sync.Mutex
	Entries []Entry
}

type Entry struct {
	Level   string
	Message string
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) add(level, format string, args ...any) {
	r.mu.Lock()
	r.Entries = append(r.Entries, Entry{Level: level, Message: fmt.Sprintf(format, args...)})
	r.mu.Unlock()
}

func (r *Recorder) DebugEnabled() bool                { return true }
func (r *Recorder) SetDebug(enabled bool)             {}
func (r *Recorder) Debugf(format string, args ...any) { r.add("DEBUG", format, args...) }
func (r *Recorder) Infof(format string, args ...any)  { r.add("INFO", format, args...) }
func (r *Recorder) Warnf(format string, args ...any)  { r.add("WARN", format, args...) }
func (r *Recorder) Errorf(format string, args ...any) { r.add("ERROR", format, args...) }

// Count returns how many entries were logged at level.
func (r *Recorder) Count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
