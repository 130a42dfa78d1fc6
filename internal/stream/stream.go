// Package stream implements the fixed-order binary encoding used for extension
// payloads inside the host's save files. Every value is little-endian and
// written in the order the caller commits it; there is no field tagging.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"extlayer/internal/handle"
)

// ErrMalformed marks a truncated or otherwise unreadable payload.
var ErrMalformed = errors.New("stream: malformed payload")

// MaxStringLen bounds length-prefixed strings so a corrupt prefix cannot
// trigger a huge allocation.
const MaxStringLen = 1 << 16

// Writer encodes values into an io.Writer. The first write error is latched
// and every later call becomes a no-op; check Err once at the end.
type Writer struct {
	w       io.Writer
	err     error
	written int
	scratch [8]byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int {
	return w.written
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.written += n
	if err != nil {
		w.err = fmt.Errorf("stream: write: %w", err)
	}
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

func (w *Writer) Uint8(v uint8) {
	w.scratch[0] = v
	w.write(w.scratch[:1])
}

func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.write(w.scratch[:4])
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.write(w.scratch[:8])
}

func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// Text writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) Text(v string) {
	if len(v) > MaxStringLen {
		if w.err == nil {
			w.err = fmt.Errorf("stream: string of %d bytes exceeds %d", len(v), MaxStringLen)
		}
		return
	}
	w.Uint32(uint32(len(v)))
	w.write([]byte(v))
}

// Bytes writes a length-prefixed byte block.
func (w *Writer) Bytes(v []byte) {
	w.Uint32(uint32(len(v)))
	w.write(v)
}

// Handle writes a reference to another host object. Identities are only
// meaningful within one process run, so readers translate them with a remap
// built by the load pass. Owners are never written this way.
func (w *Writer) Handle(id handle.ID) {
	w.Uint64(id.Uint64())
}

// Reader decodes values written by Writer. Like Writer it latches the first
// failure; after that every accessor returns the zero value.
type Reader struct {
	r       io.Reader
	err     error
	read    int
	remap   func(handle.ID) (handle.ID, bool)
	scratch [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first error encountered. Short reads wrap ErrMalformed.
func (r *Reader) Err() error {
	return r.err
}

// Consumed returns the number of bytes consumed so far.
func (r *Reader) Consumed() int {
	return r.read
}

func (r *Reader) fill(p []byte) bool {
	if r.err != nil {
		return false
	}
	n, err := io.ReadFull(r.r, p)
	r.read += n
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.err = fmt.Errorf("%w: truncated after %d bytes", ErrMalformed, r.read)
		} else {
			r.err = fmt.Errorf("stream: read: %w", err)
		}
		return false
	}
	return true
}

// Fail latches err as a malformed-payload error. Record implementations use it
// when a decoded value is out of range.
func (r *Reader) Fail(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func (r *Reader) Bool() bool {
	v := r.Uint8()
	if v > 1 {
		r.Fail("bool byte %d", v)
		return false
	}
	return v == 1
}

func (r *Reader) Uint8() uint8 {
	if !r.fill(r.scratch[:1]) {
		return 0
	}
	return r.scratch[0]
}

func (r *Reader) Uint32() uint32 {
	if !r.fill(r.scratch[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.scratch[:4])
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Uint64() uint64 {
	if !r.fill(r.scratch[:8]) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.scratch[:8])
}

func (r *Reader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

func (r *Reader) Text() string {
	n := r.Uint32()
	if r.err != nil {
		return ""
	}
	if n > MaxStringLen {
		r.Fail("string length %d exceeds %d", n, MaxStringLen)
		return ""
	}
	buf := make([]byte, n)
	if !r.fill(buf) {
		return ""
	}
	return string(buf)
}

// Bytes reads a length-prefixed byte block of at most limit bytes.
func (r *Reader) Bytes(limit int) []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if limit >= 0 && int64(n) > int64(limit) {
		r.Fail("block length %d exceeds %d", n, limit)
		return nil
	}
	buf := make([]byte, n)
	if !r.fill(buf) {
		return nil
	}
	return buf
}

// SetRemap installs the translation from identities recorded at save time to
// the identities the load pass bound for the same objects.
func (r *Reader) SetRemap(fn func(handle.ID) (handle.ID, bool)) {
	r.remap = fn
}

// Handle reads an identity. With a remap installed, references to objects
// missing from the current load come back as the zero identity.
func (r *Reader) Handle() handle.ID {
	id := handle.FromUint64(r.Uint64())
	if id.IsZero() || r.remap == nil {
		return id
	}
	mapped, ok := r.remap(id)
	if !ok {
		return handle.ID{}
	}
	return mapped
}
