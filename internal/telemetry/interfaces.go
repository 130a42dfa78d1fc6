package telemetry

import (
	"log"
	"sync/atomic"
)

// Logger exposes the logging capabilities required by extension components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger for callers that need one.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// Counters tracks extension lifecycle totals. The zero value is ready to use
// and a nil *Counters ignores every call.
type Counters struct {
	created   atomic.Uint64
	deferred  atomic.Uint64
	restored  atomic.Uint64
	removed   atomic.Uint64
	cleared   atomic.Uint64
	detached  atomic.Uint64
	checksums atomic.Uint64
	fatals    atomic.Uint64
}

// CountersSnapshot is the JSON view of Counters.
type CountersSnapshot struct {
	Created   uint64 `json:"created"`
	Deferred  uint64 `json:"deferred"`
	Restored  uint64 `json:"restored"`
	Removed   uint64 `json:"removed"`
	Cleared   uint64 `json:"cleared"`
	Detached  uint64 `json:"detached"`
	Checksums uint64 `json:"checksums"`
	Fatals    uint64 `json:"fatals"`
}

func (c *Counters) RecordCreated() {
	if c != nil {
		c.created.Add(1)
	}
}

func (c *Counters) RecordDeferred() {
	if c != nil {
		c.deferred.Add(1)
	}
}

func (c *Counters) RecordRestored() {
	if c != nil {
		c.restored.Add(1)
	}
}

func (c *Counters) RecordRemoved() {
	if c != nil {
		c.removed.Add(1)
	}
}

func (c *Counters) RecordCleared(n int) {
	if c != nil && n > 0 {
		c.cleared.Add(uint64(n))
	}
}

func (c *Counters) RecordDetached(n int) {
	if c != nil && n > 0 {
		c.detached.Add(uint64(n))
	}
}

func (c *Counters) RecordChecksum() {
	if c != nil {
		c.checksums.Add(1)
	}
}

func (c *Counters) RecordFatal() {
	if c != nil {
		c.fatals.Add(1)
	}
}

func (c *Counters) Snapshot() CountersSnapshot {
	if c == nil {
		return CountersSnapshot{}
	}
	return CountersSnapshot{
		Created:   c.created.Load(),
		Deferred:  c.deferred.Load(),
		Restored:  c.restored.Load(),
		Removed:   c.removed.Load(),
		Cleared:   c.cleared.Load(),
		Detached:  c.detached.Load(),
		Checksums: c.checksums.Load(),
		Fatals:    c.fatals.Load(),
	}
}
