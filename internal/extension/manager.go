package extension

import (
	"context"
	"errors"
	"fmt"

	"extlayer/internal/handle"
	"extlayer/internal/registry"
	"extlayer/internal/telemetry"
	"extlayer/logging"
)

// Config holds the tunables for one Manager.
type Config struct {
	// Strict turns programmer errors (double remove, stale references) into
	// panics. Release builds leave it off and treat them as no-ops.
	Strict bool
	// MaxRecordsPerKind caps each registry. Hitting the cap is reported as an
	// allocation failure. Zero means unlimited.
	MaxRecordsPerKind int
}

// DefaultConfig returns the release configuration.
func DefaultConfig() Config {
	return Config{}
}

// Deps are the collaborators injected into a Manager. Every field is optional.
type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Counters  *telemetry.Counters
	Fatal     FatalHandler
	// ValidOwner reports whether a host identity still names a live object.
	// Records are never created for identities it rejects.
	ValidOwner func(handle.ID) bool
}

var errRegistryFull = errors.New("per-kind record limit reached")

// maxRetired bounds the strict-mode destroyed-identity set of one kind. When
// it fills, older identities are forgotten and a late double destroy of one
// of them goes unreported.
const maxRetired = 1 << 16

type store struct {
	desc     Descriptor
	records  *registry.Registry[Record]
	deferred map[handle.ID]struct{}
	// retired remembers explicitly destroyed identities in strict mode so a
	// second destroy can be told apart from a never-associated object.
	retired map[handle.ID]struct{}
}

// Manager owns one registry per extension kind for the lifetime of a
// session. It is driven from the host's single simulation thread and is not
// safe for concurrent use.
type Manager struct {
	cfg    Config
	deps   Deps
	order  []Kind
	stores map[Kind]*store

	ctx     context.Context
	started bool
	frame   uint64
	load    *LoadPass
}

// NewManager returns a manager with no kinds registered.
func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}
	if deps.Fatal == nil {
		deps.Fatal = panicFatal{}
	}
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		stores: make(map[Kind]*store),
		ctx:    context.Background(),
	}
}

// Register adds an extension kind. Kinds must be registered before Init.
func (m *Manager) Register(desc Descriptor) error {
	if m.started {
		return ErrAlreadyStarted
	}
	if err := desc.validate(); err != nil {
		return fmt.Errorf("extension: %w", err)
	}
	if _, exists := m.stores[desc.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, desc.Kind)
	}
	m.stores[desc.Kind] = &store{
		desc:     desc,
		records:  registry.New[Record](),
		deferred: make(map[handle.ID]struct{}),
		retired:  make(map[handle.ID]struct{}),
	}
	m.order = append(m.order, desc.Kind)
	return nil
}

// Init starts a session. ctx is attached to every event the manager
// publishes until Shutdown.
func (m *Manager) Init(ctx context.Context) error {
	if m.started {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.ctx = ctx
	m.started = true
	m.frame = 0
	m.deps.Logger.Printf("extension manager started with %d kinds", len(m.order))
	return nil
}

// Shutdown releases every record of every kind and ends the session. It is
// safe to call on a manager that was never started.
func (m *Manager) Shutdown() {
	if !m.started {
		return
	}
	if m.load != nil {
		m.load.abandon()
	}
	m.TeardownAll()
	m.started = false
	m.deps.Logger.Printf("extension manager stopped")
	m.ctx = context.Background()
}

// Started reports whether the manager is between Init and Shutdown.
func (m *Manager) Started() bool {
	return m.started
}

// Kinds returns the registered kinds in registration order.
func (m *Manager) Kinds() []Kind {
	return append([]Kind(nil), m.order...)
}

// SetFrame records the host frame number stamped onto published events.
func (m *Manager) SetFrame(frame uint64) {
	m.frame = frame
}

// Frame returns the last frame set by the host.
func (m *Manager) Frame() uint64 {
	return m.frame
}

// Len returns how many records kind currently holds.
func (m *Manager) Len(kind Kind) int {
	st, ok := m.stores[kind]
	if !ok {
		return 0
	}
	return st.records.Len()
}

func (m *Manager) store(kind Kind) (*store, error) {
	if !m.started {
		return nil, ErrNotStarted
	}
	st, ok := m.stores[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return st, nil
}

func (m *Manager) validOwner(id handle.ID) bool {
	if id.IsZero() {
		return false
	}
	if m.deps.ValidOwner != nil {
		return m.deps.ValidOwner(id)
	}
	return true
}

// create is the single path by which records enter a registry.
func (m *Manager) create(st *store, id handle.ID, uninitialized bool) (Record, bool, error) {
	rec, created, err := st.records.FindOrCreate(id, func() (Record, error) {
		if limit := m.cfg.MaxRecordsPerKind; limit > 0 && st.records.Len() >= limit {
			return nil, fmt.Errorf("%w (%d)", errRegistryFull, limit)
		}
		return st.desc.construct(id, uninitialized)
	})
	if err != nil {
		err = fmt.Errorf("extension: %s %s: %w", st.desc.Kind, id, err)
		m.fail(err, st.desc.Kind, id)
		return nil, false, err
	}
	return rec, created, nil
}

// fail publishes err and hands it to the fatal handler.
func (m *Manager) fail(err error, kind Kind, id handle.ID) {
	m.deps.Counters.RecordFatal()
	m.deps.Logger.Printf("extension fatal: %v", err)
	publishFatal(m, kind, id, err)
	m.deps.Fatal.HandleFatal(m.ctx, err)
}

// violation reports a programmer error. Strict managers panic; release
// managers log and carry on.
func (m *Manager) violation(err error) {
	if m.cfg.Strict {
		panic(err)
	}
	m.deps.Logger.Printf("extension: ignoring %v", err)
}
