// Package hostsim stands in for the host process. It owns a table of host
// objects and drives the extension manager from the same hook points the
// real host exposes: construction, destruction, reference invalidation,
// save, load and checksum.
package hostsim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/fatal"
	"extlayer/internal/handle"
	"extlayer/internal/kinds"
	"extlayer/internal/telemetry"
	"extlayer/logging"
)

const (
	DefaultSeed = "extlayer"
	// addressBase and addressStride lay out fake host addresses. Loads
	// continue from the current cursor so restored objects never reuse the
	// addresses they were saved with.
	addressBase   uintptr = 0x10000
	addressStride uintptr = 0x40
)

var (
	ErrUnknownClass  = errors.New("hostsim: unknown class")
	ErrUnknownObject = errors.New("hostsim: unknown object")
	ErrLoadFailed    = errors.New("hostsim: load failed")
	ErrClosed        = errors.New("hostsim: world closed")
)

// Config tunes a World.
type Config struct {
	Seed      string
	Extension extension.Config
	// MaxLights caps the light source pool. Zero means unlimited.
	MaxLights int
}

func (cfg Config) normalized() Config {
	normalized := cfg
	normalized.Seed = strings.TrimSpace(normalized.Seed)
	if normalized.Seed == "" {
		normalized.Seed = DefaultSeed
	}
	if normalized.MaxLights < 0 {
		normalized.MaxLights = 0
	}
	return normalized
}

// Deps bundles the collaborators of a World. Every field is optional.
type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Counters  *telemetry.Counters
	Fatal     extension.FatalHandler
	Tracer    trace.Tracer
}

// Object is one host object.
type Object struct {
	ID    handle.ID
	Addr  uintptr
	Class Class

	concrete bool
}

// World is the simulated host. Its methods are safe for concurrent use; the
// extension manager inside only ever runs under the world lock.
type World struct {
	mu sync.Mutex

	config    Config
	publisher logging.Publisher
	logger    telemetry.Logger
	counters  *telemetry.Counters
	fatal     extension.FatalHandler
	tracer    trace.Tracer

	ext     *extension.Manager
	lights  *kinds.LightPool
	table   *handle.Table
	objects []*Object
	byID    map[handle.ID]*Object

	nextAddr uintptr
	frame    uint64
	session  uuid.UUID
	closed   bool
}

// New builds a world and starts its extension session.
func New(ctx context.Context, cfg Config, deps Deps) (*World, error) {
	normalized := cfg.normalized()

	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	counters := deps.Counters
	if counters == nil {
		counters = &telemetry.Counters{}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("extlayer/hostsim")
	}

	w := &World{
		config:    normalized,
		publisher: publisher,
		logger:    logger,
		counters:  counters,
		fatal:     deps.Fatal,
		tracer:    tracer,
		lights:    kinds.NewLightPool(normalized.MaxLights),
		table:     handle.NewTable(),
		byID:      make(map[handle.ID]*Object),
		nextAddr:  addressBase,
		session:   uuid.New(),
	}
	if w.fatal == nil {
		w.fatal = extension.FatalFunc(func(_ context.Context, err error) {
			panic(&extension.FatalError{Err: err})
		})
	}
	w.ext = extension.NewManager(normalized.Extension, extension.Deps{
		Publisher:  publisher,
		Logger:     logger,
		Counters:   counters,
		Fatal:      extension.FatalFunc(w.handleFatal),
		ValidOwner: w.validOwner,
	})
	if err := kinds.Install(w.ext, kinds.Env{Lights: w.lights}); err != nil {
		return nil, err
	}
	if err := w.ext.Init(ctx); err != nil {
		return nil, err
	}
	logger.Printf("host world %s started (seed %q)", w.session, normalized.Seed)
	return w, nil
}

// handleFatal attaches the world state for the dump. Manager failures are
// raised while w.mu is held, so the snapshot is taken without locking.
func (w *World) handleFatal(ctx context.Context, err error) {
	w.fatal.HandleFatal(fatal.WithState(ctx, w.snapshotLocked()), err)
}

// validOwner runs inside manager calls, which already hold w.mu.
func (w *World) validOwner(id handle.ID) bool {
	if !w.table.Valid(id) {
		return false
	}
	obj, ok := w.byID[id]
	return ok && obj.concrete
}

// Session identifies the world for the lifetime of the process.
func (w *World) Session() uuid.UUID {
	return w.session
}

// Frame returns the current simulation frame.
func (w *World) Frame() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frame
}

// Len returns the number of live host objects.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

// Objects returns a copy of the live objects in creation order.
func (w *World) Objects() []Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Object, 0, len(w.objects))
	for _, obj := range w.objects {
		out = append(out, *obj)
	}
	return out
}

// Lights returns how many light sources building records hold.
func (w *World) Lights() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lights.Active()
}

// Counters returns the lifecycle totals shared with the extension manager.
func (w *World) Counters() *telemetry.Counters {
	return w.counters
}

// Inspect runs fn with the extension manager under the world lock. fn must
// not call back into the world.
func (w *World) Inspect(fn func(*extension.Manager)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.ext)
}

// Spawn creates a host object of class and attaches its extension records.
// Objects whose class has no backing type are rejected by the extension
// layer; they destroy themselves and Spawn returns the ErrInvalidOwner error.
func (w *World) Spawn(class Class) (Object, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return Object{}, ErrClosed
	}
	obj, err := w.spawnLocked(class, false)
	if err != nil {
		return Object{}, err
	}
	return *obj, nil
}

func (w *World) spawnLocked(class Class, loading bool) (*Object, error) {
	info, ok := classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	addr := w.nextAddr
	w.nextAddr += addressStride
	id, err := w.table.Bind(addr)
	if err != nil {
		return nil, err
	}
	obj := &Object{ID: id, Addr: addr, Class: class, concrete: info.concrete}
	w.objects = append(w.objects, obj)
	w.byID[id] = obj

	for _, kind := range info.kinds {
		if err := w.ext.OnHostObjectConstructed(id, kind, loading); err != nil {
			w.logger.Printf("host object %s (%s) failed to attach %s: %v", id, class, kind, err)
			w.destroyLocked(obj)
			return nil, err
		}
	}
	return obj, nil
}

// Destroy removes a host object. References to it held by other records are
// invalidated first.
func (w *World) Destroy(id handle.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	w.destroyLocked(obj)
	return nil
}

func (w *World) destroyLocked(obj *Object) {
	w.ext.OnReferenceInvalidated(obj.ID, true)
	for _, kind := range classes[obj.Class].kinds {
		w.ext.OnHostObjectDestroyed(obj.ID, kind)
	}
	w.table.Release(obj.Addr)
	delete(w.byID, obj.ID)
	for i, candidate := range w.objects {
		if candidate == obj {
			w.objects = append(w.objects[:i], w.objects[i+1:]...)
			break
		}
	}
}

// InvalidateReferences broadcasts that target is going away from other
// objects' references, without destroying anything.
func (w *World) InvalidateReferences(target handle.ID, all bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ext.OnReferenceInvalidated(target, all)
}

// Reset tears the world down to an empty scenario.
func (w *World) Reset(ctx context.Context) {
	_, span := w.tracer.Start(ctx, "hostsim.Reset")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()
	span.SetAttributes(attribute.Int("hostsim.objects", len(w.objects)))
	w.resetLocked()
}

func (w *World) resetLocked() {
	w.ext.TeardownAll()
	w.objects = nil
	clear(w.byID)
	w.table.Reset()
	w.frame = 0
	w.ext.SetFrame(0)
}

// Checksum folds every record of every kind, in registration order, into a
// single sync value.
func (w *World) Checksum(ctx context.Context) (uint64, error) {
	_, span := w.tracer.Start(ctx, "hostsim.Checksum")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()
	acc := checksum.New()
	for _, kind := range w.ext.Kinds() {
		if err := w.ext.OnComputeChecksum(kind, acc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, err
		}
	}
	sum := acc.Sum()
	span.SetAttributes(
		attribute.Int64("hostsim.frame", int64(w.frame)),
		attribute.String("hostsim.checksum", fmt.Sprintf("%016x", sum)),
	)
	return sum, nil
}

// Snapshot is the debug view of the world.
type Snapshot struct {
	Session    string                     `json:"session"`
	Seed       string                     `json:"seed"`
	Frame      uint64                     `json:"frame"`
	Objects    int                        `json:"objects"`
	Lights     int                        `json:"lights"`
	Counters   telemetry.CountersSnapshot `json:"counters"`
	Extensions extension.Snapshot         `json:"extensions"`
}

// Snapshot captures the world and every extension registry.
func (w *World) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *World) snapshotLocked() Snapshot {
	return Snapshot{
		Session:    w.session.String(),
		Seed:       w.config.Seed,
		Frame:      w.frame,
		Objects:    len(w.objects),
		Lights:     w.lights.Active(),
		Counters:   w.counters.Snapshot(),
		Extensions: w.ext.Snapshot(),
	}
}

// Close ends the extension session and releases every record.
func (w *World) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.ext.Shutdown()
	w.objects = nil
	clear(w.byID)
	w.table.Reset()
	w.logger.Printf("host world %s stopped", w.session)
}
