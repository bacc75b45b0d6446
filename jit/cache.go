package jit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Bump when the NativeImage encoding or the encoders change.
const cacheSchemaVersion uint16 = 1

// ErrStaleEntry is returned for entries written by another schema or
// whose code fails its checksum.
var ErrStaleEntry = errors.New("jit: stale code cache entry")

// CacheKey identifies the image of code for arch.
func CacheKey(arch string, code []byte) string {
	h := sha256.New()
	h.Write([]byte(arch))
	h.Write([]byte{0})
	h.Write(code)
	return hex.EncodeToString(h.Sum(nil))
}

// cacheEntry is the on-disk form of one unlinked image.
type cacheEntry struct {
	Schema   uint16       `msgpack:"schema"`
	Checksum uint32       `msgpack:"checksum"`
	Image    *NativeImage `msgpack:"image"`
}

// CodeCache stores unlinked native images on disk, one msgpack file per
// key. Safe for concurrent use.
type CodeCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenCodeCache creates dir if needed.
func OpenCodeCache(dir string) (*CodeCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("code cache: %w", err)
	}
	return &CodeCache{dir: dir}, nil
}

func (c *CodeCache) pathFor(key string) string {
	return filepath.Join(c.dir, key+".mp")
}

// Put writes img under key. The pool is stored zeroed; images are linked
// after loading.
func (c *CodeCache) Put(key string, img *NativeImage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := img.Unlinked()
	f, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	entry := cacheEntry{Schema: cacheSchemaVersion, Checksum: crc32.ChecksumIEEE(stored.Code), Image: stored}
	if err := msgpack.NewEncoder(f).Encode(&entry); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), c.pathFor(key))
}

// Get reads the image stored under key.
func (c *CodeCache) Get(key string) (*NativeImage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var entry cacheEntry
	if err := msgpack.NewDecoder(f).Decode(&entry); err != nil {
		return nil, false, fmt.Errorf("%s: %w", key, err)
	}
	if entry.Schema != cacheSchemaVersion || entry.Image == nil || crc32.ChecksumIEEE(entry.Image.Code) != entry.Checksum {
		return nil, false, fmt.Errorf("%w: %s", ErrStaleEntry, key)
	}
	return entry.Image, true, nil
}

// Unlinked returns a copy of img with a zeroed constants pool.
func (img *NativeImage) Unlinked() *NativeImage {
	out := *img
	out.Code = append([]byte(nil), img.Code...)
	for i := range out.Constants {
		off := out.ConstantsOffset + 8*i
		clear(out.Code[off : off+8])
	}
	out.Linked = false
	return &out
}

// Export writes images as one msgpack stream, e.g. for `jit dump -o`.
func Export(w io.Writer, images []*NativeImage) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.EncodeArrayLen(len(images)); err != nil {
		return err
	}
	for _, img := range images {
		if err := enc.Encode(img.Unlinked()); err != nil {
			return fmt.Errorf("%s: %w", img.Function, err)
		}
	}
	return nil
}

// Import reads a stream written by Export. The images are unlinked.
func Import(r io.Reader) ([]*NativeImage, error) {
	dec := msgpack.NewDecoder(r)
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	images := make([]*NativeImage, 0, n)
	for range n {
		var img NativeImage
		if err := dec.Decode(&img); err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, nil
}
