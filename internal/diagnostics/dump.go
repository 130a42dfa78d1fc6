// Package diagnostics exposes the extension registries over HTTP: a JSON
// dump of every record and a websocket stream of lifecycle events.
package diagnostics

import (
	"time"

	"extlayer/internal/hostsim"
)

// DumpVersion is bumped whenever the Dump layout changes.
const DumpVersion = 1

// Source provides the state a dump is built from.
type Source interface {
	Snapshot() hostsim.Snapshot
}

// Dump is the document served at /debug/extensions and written by the
// schema command.
type Dump struct {
	Version     int              `json:"version" jsonschema:"const=1"`
	GeneratedAt time.Time        `json:"generatedAt"`
	World       hostsim.Snapshot `json:"world"`
}

// BuildDump captures source at now.
func BuildDump(source Source, now time.Time) Dump {
	return Dump{
		Version:     DumpVersion,
		GeneratedAt: now.UTC(),
		World:       source.Snapshot(),
	}
}
