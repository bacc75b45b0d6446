package heap

import (
	"errors"
	"fmt"

	"github.com/chazu/tuuvm/tuple"
)

// ErrIncompatibleSnapshot is returned when a snapshot was taken on a host
// with a different word size or chunk layout.
var ErrIncompatibleSnapshot = errors.New("heap: incompatible snapshot")

// ChunkSnapshot is the persisted form of one chunk.
type ChunkSnapshot struct {
	Index    int    `cbor:"index"`
	Large    bool   `cbor:"large"`
	Capacity int    `cbor:"capacity"`
	Data     []byte `cbor:"data"`
}

// Snapshot is the persisted form of a heap. Addresses stay valid across a
// save/load cycle because chunk indices are preserved.
type Snapshot struct {
	WordSize   int             `cbor:"wordSize"`
	ChunkShift int             `cbor:"chunkShift"`
	ChunkSize  int             `cbor:"chunkSize"`
	White      uint8           `cbor:"white"`
	NextHash   uint32          `cbor:"nextHash"`
	Chunks     []ChunkSnapshot `cbor:"chunks"`
}

// Snapshot captures the used part of every chunk. Callers normally collect
// first so that the snapshot holds no garbage.
func (h *Heap) Snapshot() Snapshot {
	s := Snapshot{
		WordSize:   tuple.WordSize,
		ChunkShift: ChunkAddressShift,
		ChunkSize:  h.chunkSize,
		White:      uint8(h.white),
		NextHash:   h.nextHash,
	}
	for idx, c := range h.chunks {
		if c == nil {
			continue
		}
		s.Chunks = append(s.Chunks, ChunkSnapshot{
			Index:    idx,
			Large:    c.large,
			Capacity: len(c.data),
			Data:     append([]byte(nil), c.data[:c.used]...),
		})
	}
	return s
}

// Restore rebuilds a heap from a snapshot.
func Restore(s Snapshot, opts Options) (*Heap, error) {
	if s.WordSize != tuple.WordSize || s.ChunkShift != ChunkAddressShift {
		return nil, fmt.Errorf("%w: word size %d, chunk shift %d", ErrIncompatibleSnapshot, s.WordSize, s.ChunkShift)
	}
	if s.White > 1 {
		return nil, fmt.Errorf("%w: bad white color %d", ErrIncompatibleSnapshot, s.White)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = s.ChunkSize
	}
	h := New(opts)
	h.chunks = nil
	h.white = Color(s.White)
	h.black = 1 - h.white
	h.nextHash = s.NextHash

	for _, cs := range s.Chunks {
		if cs.Index < 0 || cs.Capacity < len(cs.Data) || cs.Capacity > MaxChunkSize {
			return nil, fmt.Errorf("%w: bad chunk %d", ErrIncompatibleSnapshot, cs.Index)
		}
		for len(h.chunks) <= cs.Index {
			h.chunks = append(h.chunks, nil)
		}
		data := make([]byte, cs.Capacity)
		copy(data, cs.Data)
		h.chunks[cs.Index] = &chunk{data: data, used: len(cs.Data), large: cs.Large}
		if !cs.Large {
			h.current = cs.Index
		}
	}
	hasSmall := false
	for _, c := range h.chunks {
		if c != nil && !c.large {
			hasSmall = true
		}
	}
	if !hasSmall {
		h.current = h.linkChunk(&chunk{data: make([]byte, h.chunkSize)})
	}
	return h, nil
}
