package logging

import "time"

// Config controls the event router and the sinks built for it.
type Config struct {
	// EnabledSinks names the optional sinks to attach ("console", "json").
	EnabledSinks []string
	// BufferSize is the router queue length; events beyond it are dropped.
	BufferSize      int
	MinimumSeverity Severity
	// Fields are merged into every event's Extra without overwriting keys
	// the publisher already set.
	Fields           map[string]any
	JSON             JSONConfig
	Console          ConsoleConfig
	DropWarnInterval time.Duration
}

// JSONConfig configures the newline-delimited JSON sink.
type JSONConfig struct {
	FilePath string
	// MaxBatch flushes the buffered writer once this many events are pending.
	MaxBatch int
	// FlushInterval flushes pending events periodically. Zero or negative
	// flushes after every event and ignores MaxBatch.
	FlushInterval time.Duration
}

// ConsoleConfig configures the human-readable console sink.
type ConsoleConfig struct {
	// Prefix starts every console line.
	Prefix string
}

// DefaultConfig is the configuration used when the environment sets nothing.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			MaxBatch:      32,
			FlushInterval: 2 * time.Second,
		},
		Console: ConsoleConfig{Prefix: "[events] "},
	}
}

// HasSink reports whether name is among the enabled sinks.
func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
