package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger provides structured logging for the gateway. It wraps zerolog and
// writes to stderr by default: stdout is reserved for protocol frames on the
// stream transport, so nothing here may ever reach it.
type Logger struct {
	mu        sync.RWMutex
	zl        zerolog.Logger
	broadcast BroadcastFunc
}

// BroadcastFunc mirrors each rendered log line to a side channel (the
// websocket log hub). May be nil.
type BroadcastFunc func(line []byte)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the global logger instance.
func Get() *Logger {
	once.Do(func() {
		globalLogger = New(os.Stderr)
	})
	return globalLogger
}

// New creates a logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	l := &Logger{}
	l.zl = zerolog.New(&teeWriter{l: l, w: w}).With().Timestamp().Logger()
	return l
}

// teeWriter forwards every rendered line to the broadcast hook after the
// primary writer.
type teeWriter struct {
	l *Logger
	w io.Writer
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.l.mu.RLock()
	bc := t.l.broadcast
	t.l.mu.RUnlock()
	if bc != nil {
		cp := make([]byte, len(p))
		copy(cp, p)
		bc(cp)
	}
	return n, err
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level zerolog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.zl.Level(level)
}

// SetBroadcast installs the side-channel hook.
func (l *Logger) SetBroadcast(fn BroadcastFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcast = fn
}

// WithField returns a logger with an additional field attached to every
// entry. Derived loggers keep writing through the root's tee writer, so the
// broadcast hook is shared, not copied: SetBroadcast on the root reaches
// every derived logger, past and future.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	nl := &Logger{}
	nl.zl = l.zl.With().Interface(key, value).Logger()
	return nl
}

// Debug logs a debug message with optional fields.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.event(l.zl.Debug(), fields).Msg(msg)
}

// Info logs an informational message with optional fields.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.event(l.zl.Info(), fields).Msg(msg)
}

// Warn logs a warning message with optional fields.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.event(l.zl.Warn(), fields).Msg(msg)
}

// Error logs an error with optional fields.
func (l *Logger) Error(msg string, err error, fields map[string]interface{}) {
	ev := l.event(l.zl.Error(), fields)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func (l *Logger) event(ev *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
