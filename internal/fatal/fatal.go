// Package fatal handles broken invariants in the extension layer: the error
// is logged, a JSON dump of the registries is written, and the process exits.
package fatal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"extlayer/internal/telemetry"
)

// ExitCode is the status the process exits with after a fatal error.
const ExitCode = 1

type stateKey struct{}

// WithState attaches the state to include in a dump. Callers that hold locks
// the state provider would need capture the state up front and pass it here.
func WithState(ctx context.Context, state any) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

// StateFrom returns the state attached by WithState.
func StateFrom(ctx context.Context) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	state := ctx.Value(stateKey{})
	return state, state != nil
}

// Dump is the document written for every fatal error.
type Dump struct {
	ID    string    `json:"id"`
	Time  time.Time `json:"time"`
	Error string    `json:"error"`
	State any       `json:"state,omitempty"`
}

// Options configure a Handler.
type Options struct {
	Logger telemetry.Logger
	// DumpDir receives one JSON file per fatal error. Empty disables dumps.
	DumpDir string
	// Exit terminates the process. Defaults to os.Exit.
	Exit  func(code int)
	Clock func() time.Time
}

// Handler implements extension.FatalHandler.
type Handler struct {
	logger  telemetry.Logger
	dumpDir string
	exit    func(int)
	clock   func() time.Time

	lastDump string
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		logger:  opts.Logger,
		dumpDir: opts.DumpDir,
		exit:    opts.Exit,
		clock:   opts.Clock,
	}
	if h.logger == nil {
		h.logger = telemetry.LoggerFunc(nil)
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// HandleFatal logs err, writes the dump and exits. If the exit function
// returns, so does HandleFatal.
func (h *Handler) HandleFatal(ctx context.Context, err error) {
	if err == nil {
		err = errors.New("unspecified fatal error")
	}
	h.logger.Printf("fatal: %v", err)
	if path, derr := h.writeDump(ctx, err); derr != nil {
		h.logger.Printf("fatal: write dump: %v", derr)
	} else if path != "" {
		h.lastDump = path
		h.logger.Printf("fatal: dump written to %s", path)
	}
	h.exit(ExitCode)
}

// LastDump returns the path of the most recent dump file.
func (h *Handler) LastDump() string {
	return h.lastDump
}

func (h *Handler) writeDump(ctx context.Context, err error) (string, error) {
	if h.dumpDir == "" {
		return "", nil
	}
	if mkErr := os.MkdirAll(h.dumpDir, 0o755); mkErr != nil {
		return "", mkErr
	}
	dump := Dump{
		ID:    uuid.NewString(),
		Time:  h.clock().UTC(),
		Error: err.Error(),
	}
	if state, ok := StateFrom(ctx); ok {
		dump.State = state
	}
	raw, mErr := json.MarshalIndent(dump, "", "  ")
	if mErr != nil {
		return "", fmt.Errorf("encode dump: %w", mErr)
	}
	name := fmt.Sprintf("extlayer-%s-%s.json", dump.Time.Format("20060102T150405"), dump.ID[:8])
	path := filepath.Join(h.dumpDir, name)
	if wErr := os.WriteFile(path, raw, 0o644); wErr != nil {
		return "", wErr
	}
	return path, nil
}
