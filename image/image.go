// Package image saves and loads context snapshots.
//
// An image is one CBOR document holding the heap chunks, the root table
// (types, symbols, globals) and the names of the primitives the heap
// refers to. Addresses are preserved, so loading does not relocate
// objects. Native code is never saved.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

var log = commonlog.GetLogger("tuuvm.image")

// Magic identifies tuuvm images.
const Magic = "TUUVM-IMAGE"

// Version is bumped on incompatible document changes.
const Version uint32 = 1

// ErrNotAnImage is returned for documents without the image magic or
// with another version.
var ErrNotAnImage = errors.New("image: not a tuuvm image")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// document is the persisted form. Tuples are stored as plain words.
type document struct {
	Magic      string            `cbor:"magic"`
	Version    uint32            `cbor:"version"`
	WordSize   int               `cbor:"wordSize"`
	Heap       heap.Snapshot     `cbor:"heap"`
	Types      []uint64          `cbor:"types"`
	Symbols    map[string]uint64 `cbor:"symbols"`
	Globals    []string          `cbor:"globals"`
	GlobalRefs []uint64          `cbor:"globalRefs"`
	Primitives []string          `cbor:"primitives"`
}

func words(ts []tuple.Tuple) []uint64 {
	out := make([]uint64, len(ts))
	for i, t := range ts {
		out[i] = uint64(t)
	}
	return out
}

func tuples(ws []uint64) []tuple.Tuple {
	out := make([]tuple.Tuple, len(ws))
	for i, w := range ws {
		out[i] = tuple.Tuple(w)
	}
	return out
}

// Encode compiles pending definitions, collects, and writes the context
// to w. It must be called with no activation on the record chain.
func Encode(ctx *vm.Context, w io.Writer) error {
	if err := ctx.PrepareImage(); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	roots := ctx.ImageRoots()
	doc := document{
		Magic:      Magic,
		Version:    Version,
		WordSize:   tuple.WordSize,
		Heap:       ctx.Heap().Snapshot(),
		Types:      words(roots.Types),
		Symbols:    make(map[string]uint64, len(roots.Symbols)),
		Globals:    roots.Globals,
		GlobalRefs: words(roots.GlobalRefs),
		Primitives: roots.Primitives,
	}
	for name, s := range roots.Symbols {
		doc.Symbols[name] = uint64(s)
	}
	data, err := encMode.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("image: marshal: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	log.Infof("image written: %d chunks, %d globals, %d bytes", len(doc.Heap.Chunks), len(doc.Globals), len(data))
	return nil
}

// Decode reads an image and restores a context configured by cfg. A nil
// cfg uses config.Default.
func Decode(r io.Reader, cfg *config.Config) (*vm.Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAnImage, err)
	}
	if doc.Magic != Magic || doc.Version != Version {
		return nil, fmt.Errorf("%w: magic %q version %d", ErrNotAnImage, doc.Magic, doc.Version)
	}
	if doc.WordSize != tuple.WordSize {
		return nil, fmt.Errorf("%w: word size %d", heap.ErrIncompatibleSnapshot, doc.WordSize)
	}

	h, err := heap.Restore(doc.Heap, heap.Options{ChunkSize: cfg.Heap.ChunkSize, GCThreshold: cfg.Heap.GCThreshold})
	if err != nil {
		return nil, err
	}
	roots := vm.ImageRoots{
		Types:      tuples(doc.Types),
		Symbols:    make(map[string]tuple.Tuple, len(doc.Symbols)),
		Globals:    doc.Globals,
		GlobalRefs: tuples(doc.GlobalRefs),
		Primitives: doc.Primitives,
	}
	for name, w := range doc.Symbols {
		roots.Symbols[name] = tuple.Tuple(w)
	}
	return vm.RestoreContext(cfg, h, roots)
}

// Save writes the image of ctx to path, replacing it atomically.
func Save(ctx *vm.Context, path string) error {
	var buf bytes.Buffer
	if err := Encode(ctx, &buf); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".image-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Load reads the image at path.
func Load(path string, cfg *config.Config) (*vm.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ctx, err := Decode(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ctx, nil
}
