// Package extension attaches auxiliary records to objects owned by the host
// process. One registry exists per extension kind; the Manager drives those
// registries from the host's construction, destruction, save and load
// notifications.
package extension

import (
	"errors"
	"fmt"
	"strings"

	"extlayer/internal/checksum"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
)

// Kind names one category of auxiliary data, such as building lighting.
type Kind string

// Record is the contract every extension kind implements.
//
// Serialize and Deserialize cover the payload only. The owner is restored by
// the Manager from the host's own object table, never from the stream,
// because identities do not survive a process restart.
type Record interface {
	Owner() handle.ID
	IsInitialized() bool
	Serialize(w *stream.Writer) error
	Deserialize(r *stream.Reader) error
	// Detach clears any cached reference to target. When all is set and
	// target is the record's own owner, every cached reference is cleared.
	// The record itself stays registered.
	Detach(target handle.ID, all bool)
	// ComputeChecksum commits a fixed, pointer-free subset of the payload.
	// It must not mutate the record.
	ComputeChecksum(acc *checksum.Accumulator)
	// Release frees resources the payload holds. It is called exactly once,
	// when the record leaves its registry.
	Release()
}

// Base carries the bookkeeping shared by every kind. Concrete records embed it
// and call InitBase or InitUninitialized from their constructors.
type Base struct {
	owner       handle.ID
	initialized bool
	released    bool
}

// InitBase prepares a record created on the normal construction path.
func (b *Base) InitBase(owner handle.ID) {
	b.owner = owner
	b.initialized = true
	b.released = false
}

// InitUninitialized prepares a record that a deserialize call is about to
// fill. Payload fields are left at their zero values, which every kind must
// treat as safe to Release.
func (b *Base) InitUninitialized(owner handle.ID) {
	b.owner = owner
	b.initialized = false
	b.released = false
}

// MarkInitialized flags a no-init record as complete after a successful
// deserialize.
func (b *Base) MarkInitialized() {
	b.initialized = true
}

func (b *Base) Owner() handle.ID {
	return b.owner
}

func (b *Base) IsInitialized() bool {
	return b.initialized
}

// Released reports whether the record has left its registry.
func (b *Base) Released() bool {
	return b.released
}

// Release marks the record as released. Kinds holding resources override it
// and call Base.Release after freeing them.
func (b *Base) Release() {
	b.released = true
}

type initializer interface {
	MarkInitialized()
}

// Constructor builds a record for owner.
type Constructor func(owner handle.ID) (Record, error)

// Descriptor registers one extension kind with the Manager.
type Descriptor struct {
	Kind Kind
	// New builds a record on the normal construction path.
	New Constructor
	// NewUninitialized builds a record that Deserialize will fill. When nil,
	// New is used.
	NewUninitialized Constructor
}

var (
	errEmptyKind      = errors.New("kind must not be empty")
	errNilConstructor = errors.New("constructor must not be nil")
)

func (d Descriptor) validate() error {
	if strings.TrimSpace(string(d.Kind)) == "" {
		return errEmptyKind
	}
	if d.New == nil {
		return fmt.Errorf("%s: %w", d.Kind, errNilConstructor)
	}
	return nil
}

func (d Descriptor) construct(owner handle.ID, uninitialized bool) (Record, error) {
	ctor := d.New
	if uninitialized && d.NewUninitialized != nil {
		ctor = d.NewUninitialized
	}
	rec, err := ctor(owner)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s constructor returned nil", d.Kind)
	}
	return rec, nil
}
