// Package heap implements the object memory: a chunked bump allocator over
// byte arenas and a moving mark/compact collector.
//
// Heap objects are addressed by virtual addresses, never Go pointers. Chunk i
// occupies the address range starting at (i+1) << ChunkAddressShift, so a
// pointer tuple decodes to a chunk index and an offset without a lookup
// table. Every object starts with a four word header:
//
//	typePointerAndFlags   type tuple | color (2 bits) | bytes bit | weak bit
//	identityHashAndFlags  hash << 4 | immutable | needs-finalization | dummy
//	objectSize            payload size in bytes
//	forwardingPointer     new address, valid only during a collection
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/tuuvm/tuple"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tuuvm.gc")

// Header geometry.
const (
	HeaderWords = 4
	HeaderSize  = HeaderWords * tuple.WordSize
	Alignment   = 16

	headerTypeOffset     = 0
	headerHashOffset     = tuple.WordSize
	headerSizeOffset     = 2 * tuple.WordSize
	headerForwardOffset  = 3 * tuple.WordSize
	headerPayloadOffset  = HeaderSize
	headerFlagMask       = uintptr(0xF)
	headerPointerMask    = ^headerFlagMask
	identityHashBitCount = tuple.WordBits - IdentityHashShift
)

// typePointerAndFlags bits.
const (
	ColorMask     = 0x3
	BytesBit      = 1 << 2
	WeakObjectBit = 1 << 3
)

// identityHashAndFlags bits.
const (
	ImmutableBit         = 1 << 0
	NeedsFinalizationBit = 1 << 1
	DummyValueBit        = 1 << 2
	IdentityHashShift    = 4
)

// Chunk addressing. 64-bit hosts give every chunk a 4 GiB window, 32-bit
// hosts a 16 MiB one.
const (
	ChunkAddressShift = 24 + 8*(tuple.WordBits/64)
	MaxChunkSize      = 1 << ChunkAddressShift
	DefaultChunkSize  = 4 << 20
	DefaultThreshold  = 8 << 20
	chunkOffsetMask   = uintptr(MaxChunkSize - 1)
)

// Color is a GC mark color stored in the low header bits.
type Color uint8

// Gray never changes meaning; white and black swap after every cycle.
const grayColor Color = 2

// Options configures a heap.
type Options struct {
	ChunkSize   int
	GCThreshold int
}

type chunk struct {
	data  []byte
	used  int
	large bool
}

// Heap is the object memory of one context. It is not safe for concurrent
// use.
type Heap struct {
	chunks    []*chunk
	current   int
	chunkSize int

	white Color
	black Color

	nextHash         uint32
	allocatedSinceGC int
	threshold        int
	collecting       bool
	cycles           uint64
}

// New creates a heap with a single empty chunk.
func New(opts Options) *Heap {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	size = alignUp(size)
	threshold := opts.GCThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	h := &Heap{
		chunkSize: size,
		white:     0,
		black:     1,
		nextHash:  0x9E3779B9,
		threshold: threshold,
	}
	h.chunks = append(h.chunks, &chunk{data: make([]byte, size)})
	return h
}

func alignUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

func objectTotalSize(payload int) int {
	return alignUp(HeaderSize + payload)
}

func chunkBase(index int) uintptr {
	return uintptr(index+1) << ChunkAddressShift
}

// ---------------------------------------------------------------------------
// Word access
// ---------------------------------------------------------------------------

func readWord(b []byte) uintptr {
	if tuple.WordSize == 8 {
		return uintptr(binary.LittleEndian.Uint64(b))
	}
	return uintptr(binary.LittleEndian.Uint32(b))
}

func writeWord(b []byte, v uintptr) {
	if tuple.WordSize == 8 {
		binary.LittleEndian.PutUint64(b, uint64(v))
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
}

// locate resolves a pointer tuple to its chunk and header offset.
func (h *Heap) locate(t tuple.Tuple) (*chunk, int, bool) {
	if !t.IsPointer() {
		return nil, 0, false
	}
	idx := int(uintptr(t)>>ChunkAddressShift) - 1
	if idx < 0 || idx >= len(h.chunks) || h.chunks[idx] == nil {
		return nil, 0, false
	}
	c := h.chunks[idx]
	off := int(uintptr(t) & chunkOffsetMask)
	if off+HeaderSize > c.used {
		return nil, 0, false
	}
	return c, off, true
}

func (h *Heap) mustLocate(t tuple.Tuple) (*chunk, int) {
	c, off, ok := h.locate(t)
	if !ok {
		panic(fmt.Sprintf("heap: %v is not a valid heap object", t))
	}
	return c, off
}

// header returns the header bytes of t.
func (h *Heap) header(t tuple.Tuple) []byte {
	c, off := h.mustLocate(t)
	return c.data[off : off+HeaderSize]
}

// Contains reports whether t is a pointer to an object in this heap.
func (h *Heap) Contains(t tuple.Tuple) bool {
	_, _, ok := h.locate(t)
	return ok
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (h *Heap) nextIdentityHash() uintptr {
	// xorshift32
	x := h.nextHash
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	h.nextHash = x
	return uintptr(x) & (1<<min(32, identityHashBitCount) - 1)
}

// reserve finds room for total bytes and returns the chunk index and offset.
func (h *Heap) reserve(total int) (int, int) {
	if h.collecting {
		panic("heap: allocation during garbage collection")
	}
	if total > h.chunkSize {
		if total > MaxChunkSize {
			panic(fmt.Sprintf("heap: object of %d bytes exceeds the maximum chunk size", total))
		}
		idx := h.linkChunk(&chunk{data: make([]byte, total), large: true})
		return idx, 0
	}
	for i := h.current; i < len(h.chunks); i++ {
		c := h.chunks[i]
		if c == nil || c.large {
			continue
		}
		if c.used+total <= len(c.data) {
			h.current = i
			return i, c.used
		}
	}
	h.current = h.linkChunk(&chunk{data: make([]byte, h.chunkSize)})
	log.Debugf("linked chunk %d (%d bytes)", h.current, h.chunkSize)
	return h.current, 0
}

// linkChunk stores c in the first free chunk slot.
func (h *Heap) linkChunk(c *chunk) int {
	for i, existing := range h.chunks {
		if existing == nil {
			h.chunks[i] = c
			return i
		}
	}
	h.chunks = append(h.chunks, c)
	return len(h.chunks) - 1
}

func (h *Heap) allocate(typ tuple.Tuple, payload int, flags uintptr) tuple.Tuple {
	if payload < 0 {
		panic("heap: negative object size")
	}
	total := objectTotalSize(payload)
	idx, off := h.reserve(total)
	c := h.chunks[idx]
	c.used = off + total
	h.allocatedSinceGC += total

	obj := c.data[off : off+total]
	clear(obj)
	writeWord(obj[headerTypeOffset:], uintptr(typ)&headerPointerMask|flags|uintptr(h.white))
	writeWord(obj[headerHashOffset:], h.nextIdentityHash()<<IdentityHashShift)
	writeWord(obj[headerSizeOffset:], uintptr(payload))
	return tuple.Tuple(chunkBase(idx) + uintptr(off))
}

// AllocateByteTuple allocates a byte object with a zeroed payload.
func (h *Heap) AllocateByteTuple(typ tuple.Tuple, size int) tuple.Tuple {
	return h.allocate(typ, size, BytesBit)
}

// AllocatePointerTuple allocates a pointer object whose slots are null.
func (h *Heap) AllocatePointerTuple(typ tuple.Tuple, slots int) tuple.Tuple {
	return h.allocate(typ, slots*tuple.WordSize, 0)
}

// ShallowCopyTuple duplicates the header flags and payload of t. The copy
// gets a fresh identity hash and is mutable.
func (h *Heap) ShallowCopyTuple(t tuple.Tuple) tuple.Tuple {
	hdr := h.header(t)
	typeWord := readWord(hdr[headerTypeOffset:])
	size := int(readWord(hdr[headerSizeOffset:]))
	flags := typeWord & (BytesBit | WeakObjectBit)
	dup := h.allocate(tuple.Tuple(typeWord&headerPointerMask), size, flags)
	copy(h.Payload(dup), h.Payload(t))
	return dup
}

// ShouldCollect reports whether enough memory was allocated since the last
// cycle to warrant a collection.
func (h *Heap) ShouldCollect() bool {
	return h.allocatedSinceGC >= h.threshold
}

// SetThreshold changes the allocation volume that triggers ShouldCollect.
func (h *Heap) SetThreshold(n int) {
	if n > 0 {
		h.threshold = n
	}
}

// Cycles returns the number of completed collections. Anything caching
// payload views or object addresses must refresh them when it changes.
func (h *Heap) Cycles() uint64 {
	return h.cycles
}

// ---------------------------------------------------------------------------
// Header access
// ---------------------------------------------------------------------------

// Type returns the type tuple of t.
func (h *Heap) Type(t tuple.Tuple) tuple.Tuple {
	return tuple.Tuple(readWord(h.header(t)[headerTypeOffset:]) & headerPointerMask)
}

// SetType replaces the type pointer of t, keeping its flags.
func (h *Heap) SetType(t, typ tuple.Tuple) {
	hdr := h.header(t)
	w := readWord(hdr[headerTypeOffset:])
	writeWord(hdr[headerTypeOffset:], uintptr(typ)&headerPointerMask|w&headerFlagMask)
}

// Size returns the payload size of t in bytes.
func (h *Heap) Size(t tuple.Tuple) int {
	return int(readWord(h.header(t)[headerSizeOffset:]))
}

// SlotCount returns the number of slots of a pointer object, or the byte
// count of a byte object.
func (h *Heap) SlotCount(t tuple.Tuple) int {
	if h.IsBytes(t) {
		return h.Size(t)
	}
	return h.Size(t) / tuple.WordSize
}

// IsBytes reports whether t is a byte object.
func (h *Heap) IsBytes(t tuple.Tuple) bool {
	return readWord(h.header(t)[headerTypeOffset:])&BytesBit != 0
}

// IsWeak reports whether t holds its slots weakly.
func (h *Heap) IsWeak(t tuple.Tuple) bool {
	return readWord(h.header(t)[headerTypeOffset:])&WeakObjectBit != 0
}

// MarkWeakObject makes the slots of t weak references.
func (h *Heap) MarkWeakObject(t tuple.Tuple) {
	h.setTypeFlag(t, WeakObjectBit)
}

func (h *Heap) setTypeFlag(t tuple.Tuple, bit uintptr) {
	hdr := h.header(t)
	writeWord(hdr[headerTypeOffset:], readWord(hdr[headerTypeOffset:])|bit)
}

func (h *Heap) hashWord(t tuple.Tuple) uintptr {
	return readWord(h.header(t)[headerHashOffset:])
}

func (h *Heap) setHashFlag(t tuple.Tuple, bit uintptr) {
	hdr := h.header(t)
	writeWord(hdr[headerHashOffset:], readWord(hdr[headerHashOffset:])|bit)
}

// IdentityHash returns the identity hash of t. It survives object motion.
func (h *Heap) IdentityHash(t tuple.Tuple) uintptr {
	return h.hashWord(t) >> IdentityHashShift
}

// IsImmutable reports whether t was frozen.
func (h *Heap) IsImmutable(t tuple.Tuple) bool {
	return h.hashWord(t)&ImmutableBit != 0
}

// MarkImmutable freezes t.
func (h *Heap) MarkImmutable(t tuple.Tuple) {
	h.setHashFlag(t, ImmutableBit)
}

// NeedsFinalization reports whether t asked for finalization.
func (h *Heap) NeedsFinalization(t tuple.Tuple) bool {
	return h.hashWord(t)&NeedsFinalizationBit != 0
}

// MarkNeedsFinalization flags t for finalization.
func (h *Heap) MarkNeedsFinalization(t tuple.Tuple) {
	h.setHashFlag(t, NeedsFinalizationBit)
}

// IsDummyValue reports whether t is a placeholder that must not be read.
func (h *Heap) IsDummyValue(t tuple.Tuple) bool {
	return h.hashWord(t)&DummyValueBit != 0
}

// MarkDummyValue flags t as a placeholder.
func (h *Heap) MarkDummyValue(t tuple.Tuple) {
	h.setHashFlag(t, DummyValueBit)
}

func (h *Heap) color(t tuple.Tuple) Color {
	return Color(readWord(h.header(t)[headerTypeOffset:]) & ColorMask)
}

func (h *Heap) setColor(t tuple.Tuple, c Color) {
	hdr := h.header(t)
	w := readWord(hdr[headerTypeOffset:])
	writeWord(hdr[headerTypeOffset:], w&^ColorMask|uintptr(c))
}

// ---------------------------------------------------------------------------
// Payload access
// ---------------------------------------------------------------------------

// Payload returns a view of the payload bytes of t. The view is invalidated
// by the next collection.
func (h *Heap) Payload(t tuple.Tuple) []byte {
	c, off := h.mustLocate(t)
	size := int(readWord(c.data[off+headerSizeOffset:]))
	start := off + headerPayloadOffset
	return c.data[start : start+size : start+size]
}

// Slot reads slot i of a pointer object.
func (h *Heap) Slot(t tuple.Tuple, i int) tuple.Tuple {
	p := h.Payload(t)
	if i < 0 || (i+1)*tuple.WordSize > len(p) {
		panic(fmt.Sprintf("heap: slot %d out of bounds for %v", i, t))
	}
	return tuple.Tuple(readWord(p[i*tuple.WordSize:]))
}

// SetSlot writes slot i of a pointer object.
func (h *Heap) SetSlot(t tuple.Tuple, i int, v tuple.Tuple) {
	p := h.Payload(t)
	if i < 0 || (i+1)*tuple.WordSize > len(p) {
		panic(fmt.Sprintf("heap: slot %d out of bounds for %v", i, t))
	}
	writeWord(p[i*tuple.WordSize:], uintptr(v))
}

// Walk calls fn for every object in address order.
func (h *Heap) Walk(fn func(t tuple.Tuple)) {
	for idx, c := range h.chunks {
		if c == nil {
			continue
		}
		for off := 0; off < c.used; {
			size := int(readWord(c.data[off+headerSizeOffset:]))
			fn(tuple.Tuple(chunkBase(idx) + uintptr(off)))
			off += objectTotalSize(size)
		}
	}
}

// Usage summarizes the current memory footprint.
type Usage struct {
	Chunks      int
	LargeChunks int
	Capacity    int
	Used        int
}

// Usage reports chunk counts and byte totals.
func (h *Heap) Usage() Usage {
	var u Usage
	for _, c := range h.chunks {
		if c == nil {
			continue
		}
		u.Chunks++
		if c.large {
			u.LargeChunks++
		}
		u.Capacity += len(c.data)
		u.Used += c.used
	}
	return u
}
