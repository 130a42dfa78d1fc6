// Package handle converts the raw addresses of host-owned objects into
// generation-checked identities. The host address is only the bit pattern used
// to find a slot at the boundary; nothing in this module dereferences it.
package handle

import (
	"errors"
	"fmt"
)

var (
	// ErrNullAddress is returned when the host hands over a zero address.
	ErrNullAddress = errors.New("handle: null host address")
	// ErrAddressInUse is returned when an address is bound twice without a release.
	ErrAddressInUse = errors.New("handle: host address already bound")
)

// ID identifies one live host object. Index selects a slot in the owning
// Table and Generation distinguishes successive occupants of that slot, so a
// released identity never compares equal to the next object using the slot.
type ID struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether id is the "no object" identity.
func (id ID) IsZero() bool {
	return id.Index == 0 && id.Generation == 0
}

// Uint64 packs the identity into a single value for dumps and log fields.
func (id ID) Uint64() uint64 {
	return uint64(id.Generation)<<32 | uint64(id.Index)
}

// FromUint64 reverses Uint64.
func FromUint64(v uint64) ID {
	return ID{Index: uint32(v), Generation: uint32(v >> 32)}
}

func (id ID) String() string {
	if id.IsZero() {
		return "#none"
	}
	return fmt.Sprintf("#%d.%d", id.Index, id.Generation)
}

type slot struct {
	generation uint32
	addr       uintptr
	live       bool
}

// Table maps host addresses to identities. It is not safe for concurrent use;
// the host drives it from its single simulation thread.
type Table struct {
	slots  []slot
	free   []uint32
	byAddr map[uintptr]ID
}

// NewTable returns an empty table. Slot zero is reserved so the zero ID is
// never handed out.
func NewTable() *Table {
	return &Table{
		slots:  make([]slot, 1),
		byAddr: make(map[uintptr]ID),
	}
}

// Bind allocates an identity for addr.
func (t *Table) Bind(addr uintptr) (ID, error) {
	if addr == 0 {
		return ID{}, ErrNullAddress
	}
	if existing, ok := t.byAddr[addr]; ok {
		return existing, fmt.Errorf("%w: %#x is %s", ErrAddressInUse, addr, existing)
	}

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		index = uint32(len(t.slots) - 1)
	}

	s := &t.slots[index]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.addr = addr
	s.live = true

	id := ID{Index: index, Generation: s.generation}
	t.byAddr[addr] = id
	return id, nil
}

// Lookup returns the identity currently bound to addr.
func (t *Table) Lookup(addr uintptr) (ID, bool) {
	id, ok := t.byAddr[addr]
	return id, ok
}

// Address returns the host address behind a live identity.
func (t *Table) Address(id ID) (uintptr, bool) {
	if !t.Valid(id) {
		return 0, false
	}
	return t.slots[id.Index].addr, true
}

// Valid reports whether id still names a live slot occupant.
func (t *Table) Valid(id ID) bool {
	if id.Index == 0 || int(id.Index) >= len(t.slots) {
		return false
	}
	s := t.slots[id.Index]
	return s.live && s.generation == id.Generation
}

// Release unbinds addr and returns the identity it carried. Releasing an
// unknown address is a no-op.
func (t *Table) Release(addr uintptr) (ID, bool) {
	id, ok := t.byAddr[addr]
	if !ok {
		return ID{}, false
	}
	delete(t.byAddr, addr)
	s := &t.slots[id.Index]
	s.live = false
	s.addr = 0
	t.free = append(t.free, id.Index)
	return id, true
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	return len(t.byAddr)
}

// Reset releases every binding. Generations survive the reset so identities
// handed out before it stay invalid afterwards.
func (t *Table) Reset() {
	for addr := range t.byAddr {
		t.Release(addr)
	}
}
