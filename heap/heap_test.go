package heap

import (
	"bytes"
	"testing"

	"github.com/chazu/tuuvm/tuple"
)

func newTestHeap() *Heap {
	return New(Options{ChunkSize: 1024, GCThreshold: 4096})
}

func TestAllocatePointerTuple(t *testing.T) {
	h := newTestHeap()
	obj := h.AllocatePointerTuple(tuple.Null, 3)
	if !obj.IsPointer() || uintptr(obj)%Alignment != 0 {
		t.Fatalf("bad object address %v", obj)
	}
	if h.SlotCount(obj) != 3 || h.IsBytes(obj) {
		t.Errorf("SlotCount = %d, IsBytes = %v", h.SlotCount(obj), h.IsBytes(obj))
	}
	for i := 0; i < 3; i++ {
		if h.Slot(obj, i) != tuple.Null {
			t.Errorf("slot %d not null", i)
		}
	}
	h.SetSlot(obj, 1, tuple.FromSmallInteger(7))
	if got := h.Slot(obj, 1).SmallInteger(); got != 7 {
		t.Errorf("slot 1 = %d", got)
	}
}

func TestAllocateByteTuple(t *testing.T) {
	h := newTestHeap()
	obj := h.AllocateByteTuple(tuple.Null, 5)
	if !h.IsBytes(obj) || h.Size(obj) != 5 {
		t.Fatalf("IsBytes = %v, Size = %d", h.IsBytes(obj), h.Size(obj))
	}
	copy(h.Payload(obj), "hello")
	if string(h.Payload(obj)) != "hello" {
		t.Errorf("payload = %q", h.Payload(obj))
	}
}

func TestChunkLinking(t *testing.T) {
	h := newTestHeap()
	var objs []tuple.Tuple
	for i := 0; i < 100; i++ {
		objs = append(objs, h.AllocatePointerTuple(tuple.Null, 4))
	}
	if h.Usage().Chunks < 2 {
		t.Fatalf("expected several chunks, got %d", h.Usage().Chunks)
	}
	big := h.AllocateByteTuple(tuple.Null, 4096)
	if h.Usage().LargeChunks != 1 || h.Size(big) != 4096 {
		t.Errorf("large object was not given its own chunk")
	}
	for _, o := range objs {
		if !h.Contains(o) {
			t.Fatalf("lost object %v", o)
		}
	}
}

func TestShallowCopy(t *testing.T) {
	h := newTestHeap()
	typ := h.AllocatePointerTuple(tuple.Null, 1)
	obj := h.AllocatePointerTuple(typ, 2)
	h.SetSlot(obj, 0, tuple.True)
	h.MarkImmutable(obj)
	dup := h.ShallowCopyTuple(obj)
	if dup == obj || h.Type(dup) != typ || h.Slot(dup, 0) != tuple.True {
		t.Error("shallow copy did not duplicate header and payload")
	}
	if h.IsImmutable(dup) {
		t.Error("copy should be mutable")
	}
}

// buildList allocates a linked list of n cells, each holding its index and
// a byte payload, interleaved with garbage.
func buildList(h *Heap, n int) tuple.Tuple {
	list := tuple.Null
	for i := 0; i < n; i++ {
		h.AllocatePointerTuple(tuple.Null, 5) // garbage
		data := h.AllocateByteTuple(tuple.Null, 3)
		copy(h.Payload(data), []byte{byte(i), byte(i + 1), byte(i + 2)})
		cell := h.AllocatePointerTuple(tuple.Null, 3)
		h.SetSlot(cell, 0, tuple.FromSmallInteger(int64(i)))
		h.SetSlot(cell, 1, data)
		h.SetSlot(cell, 2, list)
		list = cell
	}
	return list
}

func checkList(t *testing.T, h *Heap, list tuple.Tuple, n int) {
	t.Helper()
	for i := n - 1; i >= 0; i-- {
		if !h.Contains(list) {
			t.Fatalf("cell %d is not a heap object: %v", i, list)
		}
		if got := h.Slot(list, 0).SmallInteger(); got != int64(i) {
			t.Fatalf("cell value = %d, want %d", got, i)
		}
		data := h.Slot(list, 1)
		if !bytes.Equal(h.Payload(data), []byte{byte(i), byte(i + 1), byte(i + 2)}) {
			t.Fatalf("cell %d data corrupted: %v", i, h.Payload(data))
		}
		list = h.Slot(list, 2)
	}
	if list != tuple.Null {
		t.Fatalf("list not terminated")
	}
}

func TestCollectPreservesReachableStructure(t *testing.T) {
	h := newTestHeap()
	list := buildList(h, 50)
	hash := h.IdentityHash(list)
	before := h.Usage().Used

	stats := h.Collect(Roots{Strong: func(visit RootVisitor) { visit(&list) }})
	if stats.LiveObjects != 100 || stats.FreedObjects != 50 {
		t.Errorf("live=%d freed=%d, want 100 and 50", stats.LiveObjects, stats.FreedObjects)
	}
	if h.Usage().Used >= before {
		t.Errorf("compaction did not shrink the heap: %d >= %d", h.Usage().Used, before)
	}
	if h.IdentityHash(list) != hash {
		t.Error("identity hash changed across motion")
	}
	checkList(t, h, list, 50)

	// A second cycle with swapped colors must keep everything alive too.
	h.Collect(Roots{Strong: func(visit RootVisitor) { visit(&list) }})
	checkList(t, h, list, 50)
	if h.Cycles() != 2 {
		t.Errorf("Cycles() = %d", h.Cycles())
	}
}

func TestCollectReleasesGarbageChunks(t *testing.T) {
	h := newTestHeap()
	for i := 0; i < 200; i++ {
		h.AllocatePointerTuple(tuple.Null, 6)
	}
	h.AllocateByteTuple(tuple.Null, 8000)
	keep := h.AllocatePointerTuple(tuple.Null, 1)
	stats := h.Collect(Roots{Strong: func(visit RootVisitor) { visit(&keep) }})
	if stats.ChunksReleased == 0 {
		t.Error("expected empty chunks to be released")
	}
	if u := h.Usage(); u.Chunks != 1 || u.LargeChunks != 0 {
		t.Errorf("usage after collection = %+v", u)
	}
	if !h.Contains(keep) {
		t.Error("root was not kept")
	}
}

func TestWeakReferencesAreCleared(t *testing.T) {
	h := newTestHeap()
	strong := h.AllocatePointerTuple(tuple.Null, 0)
	doomed := h.AllocatePointerTuple(tuple.Null, 0)
	weak := h.AllocatePointerTuple(tuple.Null, 2)
	h.MarkWeakObject(weak)
	h.SetSlot(weak, 0, strong)
	h.SetSlot(weak, 1, doomed)

	weakRoot := h.AllocatePointerTuple(tuple.Null, 0)
	weakRootKept := strong

	stats := h.Collect(Roots{
		Strong: func(visit RootVisitor) {
			visit(&strong)
			visit(&weak)
		},
		Weak: func(visit RootVisitor) {
			visit(&weakRoot)
			visit(&weakRootKept)
		},
	})
	if stats.WeakCleared != 2 {
		t.Errorf("WeakCleared = %d, want 2", stats.WeakCleared)
	}
	if h.Slot(weak, 0) != strong {
		t.Error("weak slot to a live object must follow it")
	}
	if h.Slot(weak, 1) != tuple.Null {
		t.Error("weak slot to a dead object must be nulled")
	}
	if weakRoot != tuple.Null || weakRootKept != strong {
		t.Errorf("weak roots: %v %v", weakRoot, weakRootKept)
	}
	if strong == tuple.Null {
		t.Error("strong roots must never be nulled")
	}
}

func TestTypePointersAreForwarded(t *testing.T) {
	h := newTestHeap()
	h.AllocatePointerTuple(tuple.Null, 8) // garbage in front of the type
	typ := h.AllocatePointerTuple(tuple.Null, 1)
	h.SetSlot(typ, 0, tuple.FromSmallInteger(99))
	obj := h.AllocatePointerTuple(typ, 0)
	h.Collect(Roots{Strong: func(visit RootVisitor) { visit(&obj) }})
	if got := h.Slot(h.Type(obj), 0).SmallInteger(); got != 99 {
		t.Errorf("type slot = %d", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	h := newTestHeap()
	list := buildList(h, 20)
	h.Collect(Roots{Strong: func(visit RootVisitor) { visit(&list) }})

	restored, err := Restore(h.Snapshot(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	checkList(t, restored, list, 20)
	obj := restored.AllocatePointerTuple(tuple.Null, 1)
	if !restored.Contains(obj) {
		t.Error("restored heap cannot allocate")
	}

	bad := h.Snapshot()
	bad.WordSize = 3
	if _, err := Restore(bad, Options{}); err == nil {
		t.Error("expected incompatible snapshot error")
	}
}
