package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// Dictionaries and method dictionaries share one open-addressing layout: a
// tally and an Array of 2*capacity alternating keys and values. Empty key
// slots hold tuple.HashtableEmpty, removed ones tuple.Tombstone. Method
// dictionaries key on symbol identity; dictionaries use Equals and Hash.

const initialHashtableCapacity = 8

type hashtableKind uint8

const (
	identityKeys hashtableKind = iota
	equalityKeys
)

func (ctx *Context) newHashtable(typ tuple.Tuple, capacity int) tuple.Tuple {
	d := ctx.heap.AllocatePointerTuple(typ, DictionarySlotCount)
	ctx.heap.SetSlot(d, DictionaryTally, tuple.FromIndex(0))
	ctx.heap.SetSlot(d, DictionaryStorage, ctx.newHashtableStorage(capacity))
	return d
}

func (ctx *Context) newHashtableStorage(capacity int) tuple.Tuple {
	storage := ctx.heap.AllocatePointerTuple(ctx.types[ArrayType], 2*capacity)
	for i := 0; i < capacity; i++ {
		ctx.heap.SetSlot(storage, 2*i, tuple.HashtableEmpty)
	}
	return storage
}

// NewDictionary allocates an empty Dictionary.
func (ctx *Context) NewDictionary() tuple.Tuple {
	return ctx.newHashtable(ctx.types[DictionaryType], initialHashtableCapacity)
}

// NewMethodDictionary allocates an empty MethodDictionary.
func (ctx *Context) NewMethodDictionary() tuple.Tuple {
	return ctx.newHashtable(ctx.types[MethodDictionaryType], initialHashtableCapacity)
}

func (ctx *Context) hashtableKindOf(d tuple.Tuple) hashtableKind {
	if ctx.heap.Type(d) == ctx.types[MethodDictionaryType] {
		return identityKeys
	}
	return equalityKeys
}

func (ctx *Context) keyHash(kind hashtableKind, key tuple.Tuple) uintptr {
	if kind == identityKeys {
		return ctx.IdentityHash(key)
	}
	return ctx.Hash(key)
}

func (ctx *Context) keyEquals(kind hashtableKind, a, b tuple.Tuple) bool {
	if kind == identityKeys {
		return a == b
	}
	return ctx.Equals(a, b)
}

// findSlot returns the key index of key, or of the first free slot where it
// would be inserted, and whether it was found. Equality runs with the GC
// locked so the storage cannot move during the search.
func (ctx *Context) findSlot(d, key tuple.Tuple) (int, bool) {
	kind := ctx.hashtableKindOf(d)
	ctx.GCLock()
	defer ctx.GCUnlock()

	storage := ctx.heap.Slot(d, DictionaryStorage)
	capacity := ctx.heap.SlotCount(storage) / 2
	mask := uintptr(capacity - 1)
	i := ctx.keyHash(kind, key) & mask
	firstFree := -1
	for range capacity {
		k := ctx.heap.Slot(storage, int(2*i))
		switch k {
		case tuple.HashtableEmpty:
			if firstFree < 0 {
				firstFree = int(2 * i)
			}
			return firstFree, false
		case tuple.Tombstone:
			if firstFree < 0 {
				firstFree = int(2 * i)
			}
		default:
			if ctx.keyEquals(kind, k, key) {
				return int(2 * i), true
			}
		}
		i = (i + 1) & mask
	}
	return firstFree, false
}

// DictionaryAt returns the value for key.
func (ctx *Context) DictionaryAt(d, key tuple.Tuple) (tuple.Tuple, bool) {
	i, found := ctx.findSlot(d, key)
	if !found {
		return tuple.Null, false
	}
	return ctx.heap.Slot(ctx.heap.Slot(d, DictionaryStorage), i+1), true
}

// DictionaryAtPut binds key to value, growing the storage when it is
// three quarters full. It reports whether key was new.
func (ctx *Context) DictionaryAtPut(d, key, value tuple.Tuple) bool {
	if ctx.heap.IsImmutable(d) {
		ctx.SignalError(ModifyImmutableType, "dictionary is immutable")
	}
	i, found := ctx.findSlot(d, key)
	storage := ctx.heap.Slot(d, DictionaryStorage)
	if found {
		ctx.heap.SetSlot(storage, i+1, value)
		return false
	}
	tally := ctx.heap.Slot(d, DictionaryTally).Index()
	capacity := ctx.heap.SlotCount(storage) / 2
	if i < 0 || (tally+1)*4 > capacity*3 {
		ctx.growHashtable(d, 2*capacity)
		i, _ = ctx.findSlot(d, key)
		storage = ctx.heap.Slot(d, DictionaryStorage)
	}
	ctx.heap.SetSlot(storage, i, key)
	ctx.heap.SetSlot(storage, i+1, value)
	ctx.heap.SetSlot(d, DictionaryTally, tuple.FromIndex(tally+1))
	return true
}

// DictionaryRemove unbinds key, reporting whether it was present.
func (ctx *Context) DictionaryRemove(d, key tuple.Tuple) bool {
	i, found := ctx.findSlot(d, key)
	if !found {
		return false
	}
	storage := ctx.heap.Slot(d, DictionaryStorage)
	ctx.heap.SetSlot(storage, i, tuple.Tombstone)
	ctx.heap.SetSlot(storage, i+1, tuple.Null)
	tally := ctx.heap.Slot(d, DictionaryTally).Index()
	ctx.heap.SetSlot(d, DictionaryTally, tuple.FromIndex(tally-1))
	return true
}

// DictionarySize returns the number of bindings.
func (ctx *Context) DictionarySize(d tuple.Tuple) int {
	return ctx.heap.Slot(d, DictionaryTally).Index()
}

// DictionaryEach calls fn for every binding. fn must not mutate d or
// reach a safepoint.
func (ctx *Context) DictionaryEach(d tuple.Tuple, fn func(key, value tuple.Tuple)) {
	storage := ctx.heap.Slot(d, DictionaryStorage)
	for i := 0; i < ctx.heap.SlotCount(storage); i += 2 {
		k := ctx.heap.Slot(storage, i)
		if k == tuple.HashtableEmpty || k == tuple.Tombstone {
			continue
		}
		fn(k, ctx.heap.Slot(storage, i+1))
	}
}

func (ctx *Context) growHashtable(d tuple.Tuple, capacity int) {
	kind := ctx.hashtableKindOf(d)
	ctx.GCLock()
	defer ctx.GCUnlock()

	old := ctx.heap.Slot(d, DictionaryStorage)
	storage := ctx.newHashtableStorage(capacity)
	mask := uintptr(capacity - 1)
	for j := 0; j < ctx.heap.SlotCount(old); j += 2 {
		k := ctx.heap.Slot(old, j)
		if k == tuple.HashtableEmpty || k == tuple.Tombstone {
			continue
		}
		i := ctx.keyHash(kind, k) & mask
		for ctx.heap.Slot(storage, int(2*i)) != tuple.HashtableEmpty {
			i = (i + 1) & mask
		}
		ctx.heap.SetSlot(storage, int(2*i), k)
		ctx.heap.SetSlot(storage, int(2*i+1), ctx.heap.Slot(old, j+1))
	}
	ctx.heap.SetSlot(d, DictionaryStorage, storage)
}
