package checksum

import "testing"

func commitSample(a *Accumulator) {
	a.Bool(true)
	a.Int32(-7)
	a.Uint32(42)
	a.Uint64(1 << 33)
	a.Float64(1.5)
	a.Text("electric")
}

func TestAccumulatorIsDeterministic(t *testing.T) {
	first := New()
	second := New()
	commitSample(first)
	commitSample(second)
	if first.Sum() != second.Sum() {
		t.Fatalf("expected identical sums, got %x and %x", first.Sum(), second.Sum())
	}
	if first.Count() != 6 {
		t.Fatalf("expected 6 committed values, got %d", first.Count())
	}
}

func TestAccumulatorIsOrderSensitive(t *testing.T) {
	a := New()
	a.Uint32(1)
	a.Uint32(2)

	b := New()
	b.Uint32(2)
	b.Uint32(1)

	if a.Sum() == b.Sum() {
		t.Fatalf("expected field order to change the sum, both were %x", a.Sum())
	}
}

func TestTextLengthPrefixSeparatesFields(t *testing.T) {
	a := New()
	a.Text("ab")
	a.Text("c")

	b := New()
	b.Text("a")
	b.Text("bc")

	if a.Sum() == b.Sum() {
		t.Fatal("expected length prefixes to keep adjacent strings apart")
	}
}

func TestResetRestoresEmptyState(t *testing.T) {
	empty := New().Sum()
	a := New()
	commitSample(a)
	a.Reset()
	if a.Sum() != empty || a.Count() != 0 {
		t.Fatalf("expected reset accumulator to match empty sum %x, got %x (count %d)", empty, a.Sum(), a.Count())
	}
}
