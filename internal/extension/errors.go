package extension

import (
	"context"
	"errors"
	"fmt"

	"extlayer/internal/registry"
	"extlayer/internal/stream"
)

var (
	// ErrAllocationFailure means a record could not be created. It is always
	// routed to the fatal handler.
	ErrAllocationFailure = registry.ErrAllocationFailure
	// ErrMalformedStream means a payload could not be read back. The load pass
	// that hit it must be abandoned.
	ErrMalformedStream = stream.ErrMalformed
	// ErrNotFound is the routine negative lookup result.
	ErrNotFound = errors.New("extension: record not found")
	// ErrDoubleRemove is a programmer error: a host object was destroyed twice.
	ErrDoubleRemove = errors.New("extension: record removed twice")
	// ErrStaleReference is a programmer error: a borrowed record was used after
	// its host object was destroyed.
	ErrStaleReference = errors.New("extension: stale record reference")
	// ErrUnknownKind is returned for kinds that were never registered.
	ErrUnknownKind = errors.New("extension: unknown kind")
	// ErrDuplicateKind is returned when a kind is registered twice.
	ErrDuplicateKind = errors.New("extension: duplicate kind")
	// ErrInvalidOwner is returned when the host object has no valid identity
	// at the point a record would be created.
	ErrInvalidOwner = errors.New("extension: invalid owner")
	// ErrKindMismatch is returned when a fetched record is not of the
	// requested Go type.
	ErrKindMismatch = errors.New("extension: record type mismatch")
	// ErrNotStarted is returned for operations issued outside Init/Shutdown.
	ErrNotStarted = errors.New("extension: manager not started")
	// ErrAlreadyStarted is returned when Init or Register is called on a running manager.
	ErrAlreadyStarted = errors.New("extension: manager already started")
	// ErrLoadInProgress is returned when a load pass is opened twice.
	ErrLoadInProgress = errors.New("extension: load already in progress")
	// ErrDeferredUnresolved is returned when a load pass ends with objects that
	// were constructed but never deserialized.
	ErrDeferredUnresolved = errors.New("extension: deferred records never deserialized")
)

// FatalHandler receives unrecoverable failures. Production handlers capture
// diagnostics and terminate the process; if a handler returns, the failing
// operation reports err to its caller.
type FatalHandler interface {
	HandleFatal(ctx context.Context, err error)
}

// FatalFunc adapts a function into a FatalHandler.
type FatalFunc func(ctx context.Context, err error)

func (f FatalFunc) HandleFatal(ctx context.Context, err error) {
	if f == nil {
		return
	}
	f(ctx, err)
}

// FatalError is the panic value used when no FatalHandler is installed.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("extension: fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

type panicFatal struct{}

func (panicFatal) HandleFatal(_ context.Context, err error) {
	panic(&FatalError{Err: err})
}
