package heap

import (
	"fmt"
	"time"

	"github.com/chazu/tuuvm/tuple"
)

// RootVisitor receives the address of a root so the collector can rewrite
// it after objects move.
type RootVisitor func(root *tuple.Tuple)

// Roots enumerates the references held outside the heap.
type Roots struct {
	// Strong roots keep their referents alive.
	Strong func(visit RootVisitor)
	// Weak roots are nulled when their referent is otherwise unreachable.
	Weak func(visit RootVisitor)
}

func (r Roots) visitStrong(v RootVisitor) {
	if r.Strong != nil {
		r.Strong(v)
	}
}

func (r Roots) visitWeak(v RootVisitor) {
	if r.Weak != nil {
		r.Weak(v)
	}
}

// CycleStats describes one collection.
type CycleStats struct {
	Cycle          uint64
	LiveObjects    int
	LiveBytes      int
	FreedObjects   int
	FreedBytes     int
	WeakCleared    int
	ChunksReleased int
	Chunks         int
	Duration       time.Duration
}

// Collect runs a full cycle: mark, weak sweep, forwarding computation,
// pointer rewriting, compaction and the color swap.
func (h *Heap) Collect(roots Roots) CycleStats {
	start := time.Now()
	h.collecting = true
	defer func() { h.collecting = false }()

	var stats CycleStats
	h.Mark(roots)
	stats.WeakCleared = h.SweepWeak(roots)
	stats.LiveObjects, stats.LiveBytes, stats.FreedObjects, stats.FreedBytes = h.ComputeCompactionForwardingPointers()
	h.ApplyForwardingPointers(roots)
	stats.ChunksReleased = h.Compact()
	h.SwapGCColors()

	h.cycles++
	h.allocatedSinceGC = 0
	stats.Cycle = h.cycles
	stats.Chunks = h.Usage().Chunks
	stats.Duration = time.Since(start)
	log.Debugf("gc cycle %d: live=%d (%d bytes) freed=%d (%d bytes) weak=%d chunks=%d released=%d in %s",
		stats.Cycle, stats.LiveObjects, stats.LiveBytes, stats.FreedObjects, stats.FreedBytes,
		stats.WeakCleared, stats.Chunks, stats.ChunksReleased, stats.Duration)
	return stats
}

// ---------------------------------------------------------------------------
// Mark
// ---------------------------------------------------------------------------

// Mark colors every object reachable from the strong roots black. Weak
// objects are blackened without tracing their slots.
func (h *Heap) Mark(roots Roots) {
	var gray []tuple.Tuple
	shade := func(t tuple.Tuple) {
		if !t.IsPointer() {
			return
		}
		if !h.Contains(t) {
			panic(fmt.Sprintf("heap: root or slot %v points outside the heap", t))
		}
		if h.color(t) == h.white {
			h.setColor(t, grayColor)
			gray = append(gray, t)
		}
	}
	roots.visitStrong(func(root *tuple.Tuple) { shade(*root) })

	for len(gray) > 0 {
		obj := gray[len(gray)-1]
		gray = gray[:len(gray)-1]

		shade(h.Type(obj))
		if !h.IsBytes(obj) && !h.IsWeak(obj) {
			n := h.Size(obj) / tuple.WordSize
			for i := 0; i < n; i++ {
				shade(h.Slot(obj, i))
			}
		}
		h.setColor(obj, h.black)
	}
}

func (h *Heap) isLive(t tuple.Tuple) bool {
	return h.color(t) == h.black
}

// SweepWeak nulls weak references whose referent was not marked: slots of
// live weak objects and weak roots. It returns the number of cleared
// references.
func (h *Heap) SweepWeak(roots Roots) int {
	cleared := 0
	h.Walk(func(obj tuple.Tuple) {
		if !h.isLive(obj) || h.IsBytes(obj) || !h.IsWeak(obj) {
			return
		}
		n := h.Size(obj) / tuple.WordSize
		for i := 0; i < n; i++ {
			ref := h.Slot(obj, i)
			if ref.IsPointer() && !h.isLive(ref) {
				h.SetSlot(obj, i, tuple.Null)
				cleared++
			}
		}
	})
	roots.visitWeak(func(root *tuple.Tuple) {
		if root.IsPointer() && !h.isLive(*root) {
			*root = tuple.Null
			cleared++
		}
	})
	return cleared
}

// ---------------------------------------------------------------------------
// Forwarding
// ---------------------------------------------------------------------------

// ComputeCompactionForwardingPointers assigns every live object its address
// after sliding compaction. Objects in large chunks stay in place.
func (h *Heap) ComputeCompactionForwardingPointers() (liveObjects, liveBytes, deadObjects, deadBytes int) {
	cursorChunk := h.nextSmallChunk(0)
	cursorOff := 0

	for idx, c := range h.chunks {
		if c == nil {
			continue
		}
		for off := 0; off < c.used; {
			hdr := c.data[off : off+HeaderSize]
			total := objectTotalSize(int(readWord(hdr[headerSizeOffset:])))
			if Color(readWord(hdr[headerTypeOffset:])&ColorMask) != h.black {
				writeWord(hdr[headerForwardOffset:], 0)
				deadObjects++
				deadBytes += total
				off += total
				continue
			}
			liveObjects++
			liveBytes += total

			var dest uintptr
			if c.large {
				dest = chunkBase(idx) + uintptr(off)
			} else {
				for cursorOff+total > len(h.chunks[cursorChunk].data) {
					cursorChunk = h.nextSmallChunk(cursorChunk + 1)
					cursorOff = 0
				}
				dest = chunkBase(cursorChunk) + uintptr(cursorOff)
				cursorOff += total
			}
			writeWord(hdr[headerForwardOffset:], dest)
			off += total
		}
	}
	return
}

// nextSmallChunk returns the first regular chunk at or after idx.
func (h *Heap) nextSmallChunk(idx int) int {
	for i := idx; i < len(h.chunks); i++ {
		if c := h.chunks[i]; c != nil && !c.large {
			return i
		}
	}
	panic("heap: no regular chunk available for compaction")
}

func (h *Heap) forwarded(t tuple.Tuple) tuple.Tuple {
	if !t.IsPointer() {
		return t
	}
	dest := readWord(h.header(t)[headerForwardOffset:])
	if dest == 0 {
		panic(fmt.Sprintf("heap: reference to collected object %v", t))
	}
	return tuple.Tuple(dest)
}

// ApplyForwardingPointers rewrites roots, slots and type pointers to the
// addresses computed for compaction.
func (h *Heap) ApplyForwardingPointers(roots Roots) {
	rewrite := func(root *tuple.Tuple) { *root = h.forwarded(*root) }
	roots.visitStrong(rewrite)
	roots.visitWeak(rewrite)

	h.Walk(func(obj tuple.Tuple) {
		if !h.isLive(obj) {
			return
		}
		h.SetType(obj, h.forwarded(h.Type(obj)))
		if h.IsBytes(obj) {
			return
		}
		n := h.Size(obj) / tuple.WordSize
		for i := 0; i < n; i++ {
			h.SetSlot(obj, i, h.forwarded(h.Slot(obj, i)))
		}
	})
}

// ---------------------------------------------------------------------------
// Compaction
// ---------------------------------------------------------------------------

// Compact slides live objects to their forwarding addresses and releases
// chunks left empty. It returns the number of released chunks.
func (h *Heap) Compact() int {
	newUsed := make([]int, len(h.chunks))
	for _, c := range h.chunks {
		if c == nil {
			continue
		}
		for off := 0; off < c.used; {
			hdr := c.data[off : off+HeaderSize]
			total := objectTotalSize(int(readWord(hdr[headerSizeOffset:])))
			live := Color(readWord(hdr[headerTypeOffset:])&ColorMask) == h.black
			if live {
				dest := readWord(hdr[headerForwardOffset:])
				didx := int(dest>>ChunkAddressShift) - 1
				doff := int(dest & chunkOffsetMask)
				dc := h.chunks[didx]
				copy(dc.data[doff:doff+total], c.data[off:off+total])
				writeWord(dc.data[doff+headerForwardOffset:], 0)
				if end := doff + total; end > newUsed[didx] {
					newUsed[didx] = end
				}
			}
			off += total
		}
	}

	released := 0
	keptSmall := false
	h.current = 0
	for idx, c := range h.chunks {
		if c == nil {
			continue
		}
		used := newUsed[idx]
		if used < c.used {
			clear(c.data[used:c.used])
		}
		c.used = used
		switch {
		case c.large && used == 0:
			h.chunks[idx] = nil
			released++
		case !c.large && used == 0 && keptSmall:
			h.chunks[idx] = nil
			released++
		case !c.large:
			if !keptSmall || used > 0 {
				h.current = idx
			}
			keptSmall = true
		}
	}
	for len(h.chunks) > 0 && h.chunks[len(h.chunks)-1] == nil {
		h.chunks = h.chunks[:len(h.chunks)-1]
	}
	return released
}

// SwapGCColors exchanges the meaning of white and black, turning every
// survivor white for the next cycle.
func (h *Heap) SwapGCColors() {
	h.white, h.black = h.black, h.white
}
