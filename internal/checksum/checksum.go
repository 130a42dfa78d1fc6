// Package checksum provides the accumulator extension records feed when the
// host runs its cross-client consistency pass.
package checksum

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Accumulator folds values into a running xxhash64 digest. Values are encoded
// little-endian in the order they are committed, so two machines committing
// the same fields in the same order always agree.
type Accumulator struct {
	digest  *xxhash.Digest
	count   uint64
	scratch [8]byte
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{digest: xxhash.New()}
}

func (a *Accumulator) commit(p []byte) {
	_, _ = a.digest.Write(p)
	a.count++
}

func (a *Accumulator) Bool(v bool) {
	if v {
		a.Uint8(1)
		return
	}
	a.Uint8(0)
}

func (a *Accumulator) Uint8(v uint8) {
	a.scratch[0] = v
	a.commit(a.scratch[:1])
}

func (a *Accumulator) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(a.scratch[:4], v)
	a.commit(a.scratch[:4])
}

func (a *Accumulator) Int32(v int32) {
	a.Uint32(uint32(v))
}

func (a *Accumulator) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(a.scratch[:8], v)
	a.commit(a.scratch[:8])
}

// Float64 commits the IEEE-754 bit pattern. Negative zero and NaN payloads
// are hashed as-is.
func (a *Accumulator) Float64(v float64) {
	a.Uint64(math.Float64bits(v))
}

// Text commits a length prefix followed by the bytes of v.
func (a *Accumulator) Text(v string) {
	binary.LittleEndian.PutUint32(a.scratch[:4], uint32(len(v)))
	_, _ = a.digest.Write(a.scratch[:4])
	_, _ = a.digest.WriteString(v)
	a.count++
}

// Sum returns the current digest without resetting it.
func (a *Accumulator) Sum() uint64 {
	return a.digest.Sum64()
}

// Count returns how many values have been committed.
func (a *Accumulator) Count() uint64 {
	return a.count
}

// Reset clears the accumulator for reuse.
func (a *Accumulator) Reset() {
	a.digest.Reset()
	a.count = 0
}
