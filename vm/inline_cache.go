package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// Send-site caches
//
// A cache belongs to one send instruction, found by its pc in the
// activation's InlineCacheTable. It maps receiver types to the methods
// LookupSelector resolved for them and holds at most size entries; once
// full, each new type overwrites the slot after the last one written.
//
// Types and methods are stored as raw words that the collector does not
// rewrite, so an entry is only meaningful in the dispatch epoch it was
// written in. Collections and method dictionary changes advance the epoch,
// and a lookup from a later epoch empties the cache first.

// CacheState is the number of receiver types a cache currently answers for:
// none, one, or several.
type CacheState uint8

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CachePolymorphic
)

func (s CacheState) String() string {
	switch s {
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	}
	return "empty"
}

// DefaultPICSize is the entry limit used when [dispatch] pic_size is unset.
const DefaultPICSize = 6

// InlineCacheEntry pairs a receiver type with its resolved method.
type InlineCacheEntry struct {
	Type   tuple.Tuple
	Method tuple.Tuple
}

// InlineCache is the cache of one send site.
type InlineCache struct {
	State   CacheState
	Entries []InlineCacheEntry
	Epoch   uint64
	size    int
	next    int // slot overwritten by the next insertion into a full cache

	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func percent(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(hits+misses)
}

// NewInlineCache creates an empty cache holding up to size entries.
func NewInlineCache(size int) *InlineCache {
	if size < 1 {
		size = DefaultPICSize
	}
	return &InlineCache{size: size, Entries: make([]InlineCacheEntry, 0, size)}
}

// Lookup returns the method cached for typ, or null. A lookup from another
// epoch empties the cache and misses.
func (ic *InlineCache) Lookup(typ tuple.Tuple, epoch uint64) tuple.Tuple {
	if ic.Epoch != epoch {
		ic.clear()
		ic.Epoch = epoch
	}
	for i := range ic.Entries {
		if ic.Entries[i].Type == typ {
			ic.Hits++
			return ic.Entries[i].Method
		}
	}
	ic.Misses++
	return tuple.Null
}

// Update caches method for typ. Null methods (failed lookups) are not
// cached.
func (ic *InlineCache) Update(typ, method tuple.Tuple, epoch uint64) {
	if method.IsNull() {
		return
	}
	if ic.Epoch != epoch {
		ic.clear()
		ic.Epoch = epoch
	}
	for i := range ic.Entries {
		if ic.Entries[i].Type == typ {
			ic.Entries[i].Method = method
			return
		}
	}

	entry := InlineCacheEntry{Type: typ, Method: method}
	if len(ic.Entries) < ic.size {
		ic.Entries = append(ic.Entries, entry)
	} else {
		ic.Entries[ic.next] = entry
		ic.next = (ic.next + 1) % ic.size
		ic.Evictions++
	}
	if len(ic.Entries) == 1 {
		ic.State = CacheMonomorphic
	} else {
		ic.State = CachePolymorphic
	}
}

// Count returns the number of cached receiver types.
func (ic *InlineCache) Count() int {
	return len(ic.Entries)
}

// HitRate is the percentage of lookups answered from the cache.
func (ic *InlineCache) HitRate() float64 { return percent(ic.Hits, ic.Misses) }

func (ic *InlineCache) clear() {
	ic.State = CacheEmpty
	ic.Entries = ic.Entries[:0]
	ic.next = 0
}

// Reset empties the cache and zeroes its counters.
func (ic *InlineCache) Reset() {
	ic.clear()
	ic.Hits = 0
	ic.Misses = 0
	ic.Evictions = 0
}

// InlineCacheTable holds the send-site caches of one FunctionBytecode,
// keyed by pc.
type InlineCacheTable struct {
	caches map[int]*InlineCache
	size   int
}

// NewInlineCacheTable returns an empty table whose caches hold picSize
// entries.
func NewInlineCacheTable(picSize int) *InlineCacheTable {
	return &InlineCacheTable{caches: map[int]*InlineCache{}, size: picSize}
}

// GetOrCreate returns the cache of the send at pc.
func (t *InlineCacheTable) GetOrCreate(pc int) *InlineCache {
	ic, ok := t.caches[pc]
	if !ok {
		ic = NewInlineCache(t.size)
		t.caches[pc] = ic
	}
	return ic
}

// Get returns the cache of the send at pc, or nil before its first lookup.
func (t *InlineCacheTable) Get(pc int) *InlineCache {
	return t.caches[pc]
}

// CacheTally counts the caches of a table by state and sums their lookups.
type CacheTally struct {
	Monomorphic int
	Polymorphic int
	Empty       int
	Hits        uint64
	Misses      uint64
}

// Stats tallies every cache in the table.
func (t *InlineCacheTable) Stats() CacheTally {
	var tally CacheTally
	for _, ic := range t.caches {
		switch ic.State {
		case CacheMonomorphic:
			tally.Monomorphic++
		case CachePolymorphic:
			tally.Polymorphic++
		default:
			tally.Empty++
		}
		tally.Hits += ic.Hits
		tally.Misses += ic.Misses
	}
	return tally
}

// HitRate is the percentage of lookups answered by any cache of the table.
func (t *InlineCacheTable) HitRate() float64 {
	tally := t.Stats()
	return percent(tally.Hits, tally.Misses)
}

// Reset empties every cache of the table.
func (t *InlineCacheTable) Reset() {
	for _, ic := range t.caches {
		ic.Reset()
	}
}

// DispatchStats summarizes the sends of a context and the state of its
// send-site caches.
type DispatchStats struct {
	Sends         uint64 // sends executed
	FullLookups   uint64 // sends resolved through the method dictionaries
	NotUnderstood uint64 // sends that raised MessageNotUnderstood
	CallSites     int
	Monomorphic   int
	Polymorphic   int
	Empty         int // never filled, or emptied by an epoch change
	TotalHits     uint64
	TotalMisses   uint64

	HitRate         float64 // percent of lookups that hit
	MonomorphicRate float64 // percent of filled sites with a single type
}

// DispatchStats sums the caches of every table of the context.
func (ctx *Context) DispatchStats() DispatchStats {
	stats := ctx.stats
	for _, table := range ctx.cacheTables {
		if table == nil {
			continue
		}
		tally := table.Stats()
		stats.Monomorphic += tally.Monomorphic
		stats.Polymorphic += tally.Polymorphic
		stats.Empty += tally.Empty
		stats.TotalHits += tally.Hits
		stats.TotalMisses += tally.Misses
		stats.CallSites += tally.Monomorphic + tally.Polymorphic + tally.Empty
	}
	stats.HitRate = percent(stats.TotalHits, stats.TotalMisses)
	if filled := stats.CallSites - stats.Empty; filled > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(filled)
	}
	return stats
}
