package registry

import (
	"errors"
	"fmt"
	"testing"

	"extlayer/internal/handle"
)

type record struct {
	owner handle.ID
	x     int
}

func id(n uint32) handle.ID {
	return handle.ID{Index: n, Generation: 1}
}

func newRecord(owner handle.ID) func() (*record, error) {
	return func() (*record, error) {
		return &record{owner: owner}, nil
	}
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	reg := New[*record]()

	first, created, err := reg.FindOrCreate(id(1), newRecord(id(1)))
	if err != nil || !created {
		t.Fatalf("expected first call to create, got created=%t err=%v", created, err)
	}
	first.x = 42

	calls := 0
	second, created, err := reg.FindOrCreate(id(1), func() (*record, error) {
		calls++
		return &record{}, nil
	})
	if err != nil {
		t.Fatalf("second find-or-create: %v", err)
	}
	if created || calls != 0 {
		t.Fatalf("expected existing record, got created=%t constructor calls=%d", created, calls)
	}
	if second != first || second.x != 42 {
		t.Fatalf("expected the same record instance, got %+v", second)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected count 1, got %d", reg.Len())
	}
}

func TestFindOrCreateWrapsConstructorFailure(t *testing.T) {
	reg := New[*record]()
	cause := errors.New("out of memory")
	_, created, err := reg.FindOrCreate(id(1), func() (*record, error) { return nil, cause })
	if created {
		t.Fatal("expected no record on failure")
	}
	if !errors.Is(err, ErrAllocationFailure) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped allocation failure, got %v", err)
	}
	if _, ok := reg.Find(id(1)); ok {
		t.Fatal("expected registry to stay empty after failed create")
	}
}

func TestRemoveOfMissingIDIsNoop(t *testing.T) {
	reg := New[*record]()
	if _, ok := reg.Remove(id(9)); ok {
		t.Fatal("expected remove of unknown id to report false")
	}
	reg.FindOrCreate(id(1), newRecord(id(1)))
	if _, ok := reg.Remove(id(1)); !ok {
		t.Fatal("expected first remove to succeed")
	}
	if _, ok := reg.Remove(id(1)); ok {
		t.Fatal("expected second remove to be a no-op")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestForEachVisitsInInsertionOrder(t *testing.T) {
	reg := New[*record]()
	order := []uint32{5, 2, 9, 1}
	for _, n := range order {
		reg.FindOrCreate(id(n), newRecord(id(n)))
	}
	reg.Remove(id(2))
	reg.FindOrCreate(id(2), newRecord(id(2)))

	var visited []uint32
	reg.ForEach(func(got handle.ID, _ *record) bool {
		visited = append(visited, got.Index)
		return true
	})
	expected := []uint32{5, 9, 1, 2}
	if fmt.Sprint(visited) != fmt.Sprint(expected) {
		t.Fatalf("expected visit order %v, got %v", expected, visited)
	}

	ids := reg.IDs()
	if len(ids) != len(expected) {
		t.Fatalf("expected %d ids, got %d", len(expected), len(ids))
	}
}

func TestForEachStopsWhenVisitorReturnsFalse(t *testing.T) {
	reg := New[*record]()
	for n := uint32(1); n <= 3; n++ {
		reg.FindOrCreate(id(n), newRecord(id(n)))
	}
	visits := 0
	reg.ForEach(func(handle.ID, *record) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Fatalf("expected traversal to stop after 1 visit, got %d", visits)
	}
}

func TestForEachPanicsWhenVisitorRemoves(t *testing.T) {
	reg := New[*record]()
	reg.FindOrCreate(id(1), newRecord(id(1)))
	reg.FindOrCreate(id(2), newRecord(id(2)))

	defer func() {
		recovered := recover()
		err, ok := recovered.(error)
		if !ok || !errors.Is(err, ErrMutationDuringIteration) {
			t.Fatalf("expected ErrMutationDuringIteration panic, got %v", recovered)
		}
		// The guard is released by the deferred decrement, so the registry is
		// usable again and still holds both records.
		if reg.Len() != 2 {
			t.Fatalf("expected both records to survive, got %d", reg.Len())
		}
		if _, ok := reg.Remove(id(1)); !ok {
			t.Fatal("expected remove to work after the panic unwound")
		}
	}()

	reg.ForEach(func(got handle.ID, _ *record) bool {
		reg.Remove(got)
		return true
	})
	t.Fatal("expected ForEach to panic")
}

func TestForEachPanicsWhenVisitorInserts(t *testing.T) {
	reg := New[*record]()
	reg.FindOrCreate(id(1), newRecord(id(1)))

	defer func() {
		if recovered := recover(); recovered == nil {
			t.Fatal("expected insert during traversal to panic")
		}
	}()
	reg.ForEach(func(handle.ID, *record) bool {
		reg.FindOrCreate(id(2), newRecord(id(2)))
		return true
	})
}

func TestClearAllReturnsRecordsAndEmpties(t *testing.T) {
	reg := New[*record]()
	for n := uint32(1); n <= 4; n++ {
		reg.FindOrCreate(id(n), newRecord(id(n)))
	}
	reg.Remove(id(3))

	cleared := reg.ClearAll()
	if len(cleared) != 3 {
		t.Fatalf("expected 3 cleared records, got %d", len(cleared))
	}
	if cleared[0].owner != id(1) || cleared[2].owner != id(4) {
		t.Fatalf("expected insertion order, got %v .. %v", cleared[0].owner, cleared[2].owner)
	}
	for n := uint32(1); n <= 4; n++ {
		if _, ok := reg.Find(id(n)); ok {
			t.Fatalf("expected %s to be gone after ClearAll", id(n))
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("expected zero count, got %d", reg.Len())
	}
	if again := reg.ClearAll(); again != nil {
		t.Fatalf("expected second ClearAll to return nil, got %d records", len(again))
	}
}

func TestCompactionKeepsLookupsConsistent(t *testing.T) {
	reg := New[*record]()
	const total = 100
	for n := uint32(1); n <= total; n++ {
		reg.FindOrCreate(id(n), newRecord(id(n)))
	}
	for n := uint32(1); n <= total; n += 2 {
		reg.Remove(id(n))
	}
	if reg.Len() != total/2 {
		t.Fatalf("expected %d records, got %d", total/2, reg.Len())
	}
	if len(reg.entries) >= total {
		t.Fatalf("expected ordered slice to be compacted, still %d entries", len(reg.entries))
	}
	prev := uint32(0)
	reg.ForEach(func(got handle.ID, rec *record) bool {
		if got.Index%2 != 0 {
			t.Fatalf("expected only even ids, saw %s", got)
		}
		if got.Index <= prev {
			t.Fatalf("expected ascending insertion order, %d after %d", got.Index, prev)
		}
		if rec.owner != got {
			t.Fatalf("expected record owner %s, got %s", got, rec.owner)
		}
		prev = got.Index
		return true
	})
}
