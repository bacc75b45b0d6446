package vm

import (
	"testing"

	"github.com/chazu/tuuvm/tuple"
)

// Cache tests use arbitrary distinct words as stand-ins for type and method
// tuples; the cache only compares them.
func fakeTuple(n int) tuple.Tuple {
	return tuple.Tuple(n << 4)
}

func TestInlineCacheEmpty(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)

	if method := ic.Lookup(fakeTuple(1), 1); !method.IsNull() {
		t.Error("Expected null from empty cache")
	}
	if ic.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", ic.Misses)
	}
}

func TestInlineCacheMonomorphic(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)
	typ, method := fakeTuple(1), fakeTuple(100)

	ic.Update(typ, method, 1)
	if ic.State != CacheMonomorphic {
		t.Errorf("Expected monomorphic state, got %v", ic.State)
	}
	if ic.Count() != 1 {
		t.Errorf("Expected count 1, got %d", ic.Count())
	}

	if m := ic.Lookup(typ, 1); m != method {
		t.Error("Expected cache hit")
	}
	if ic.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", ic.Hits)
	}

	if m := ic.Lookup(fakeTuple(2), 1); !m.IsNull() {
		t.Error("Expected cache miss for different type")
	}
	if ic.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", ic.Misses)
	}
}

func TestInlineCacheUpgradeToPolymorphic(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)

	ic.Update(fakeTuple(1), fakeTuple(101), 1)
	ic.Update(fakeTuple(2), fakeTuple(102), 1)
	if ic.State != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", ic.State)
	}
	if ic.Count() != 2 {
		t.Errorf("Expected count 2, got %d", ic.Count())
	}
	if m := ic.Lookup(fakeTuple(1), 1); m != fakeTuple(101) {
		t.Error("Expected hit for first type")
	}
	if m := ic.Lookup(fakeTuple(2), 1); m != fakeTuple(102) {
		t.Error("Expected hit for second type")
	}
}

func TestInlineCacheFIFOEviction(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)
	for i := 1; i <= DefaultPICSize; i++ {
		ic.Update(fakeTuple(i), fakeTuple(100+i), 1)
	}
	if ic.Count() != DefaultPICSize {
		t.Fatalf("Expected count %d, got %d", DefaultPICSize, ic.Count())
	}

	// One more evicts the oldest entry.
	ic.Update(fakeTuple(99), fakeTuple(199), 1)
	if ic.Count() != DefaultPICSize || ic.Evictions != 1 {
		t.Errorf("count %d evictions %d", ic.Count(), ic.Evictions)
	}
	if m := ic.Lookup(fakeTuple(1), 1); !m.IsNull() {
		t.Error("oldest entry must be evicted")
	}
	if m := ic.Lookup(fakeTuple(2), 1); m != fakeTuple(102) {
		t.Error("second entry must survive")
	}
	if m := ic.Lookup(fakeTuple(99), 1); m != fakeTuple(199) {
		t.Error("new entry must hit")
	}
}

func TestInlineCacheEpochInvalidates(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)
	ic.Update(fakeTuple(1), fakeTuple(101), 1)

	if m := ic.Lookup(fakeTuple(1), 2); !m.IsNull() {
		t.Error("a newer epoch must miss")
	}
	if ic.State != CacheEmpty {
		t.Errorf("stale cache must be cleared, state %v", ic.State)
	}
}

func TestInlineCacheHitRate(t *testing.T) {
	ic := NewInlineCache(DefaultPICSize)
	ic.Update(fakeTuple(1), fakeTuple(101), 1)

	for i := 0; i < 10; i++ {
		ic.Lookup(fakeTuple(1), 1)
	}
	ic.Lookup(fakeTuple(2), 1)
	ic.Lookup(fakeTuple(2), 1)

	// 10 hits / 12 total = 83.33%
	if hitRate := ic.HitRate(); hitRate < 83.0 || hitRate > 84.0 {
		t.Errorf("Expected ~83%% hit rate, got %.2f%%", hitRate)
	}
}

func TestInlineCacheTable(t *testing.T) {
	table := NewInlineCacheTable(DefaultPICSize)

	ic1 := table.GetOrCreate(100)
	if ic1 == nil {
		t.Fatal("Expected cache to be created")
	}
	if ic2 := table.GetOrCreate(100); ic1 != ic2 {
		t.Error("Expected same cache for same PC")
	}
	if ic3 := table.GetOrCreate(200); ic1 == ic3 {
		t.Error("Expected different cache for different PC")
	}
}

func TestInlineCacheTableStats(t *testing.T) {
	table := NewInlineCacheTable(DefaultPICSize)

	ic1 := table.GetOrCreate(100)
	ic1.Update(fakeTuple(1), fakeTuple(101), 1)
	ic1.Lookup(fakeTuple(1), 1)

	table.GetOrCreate(200)

	ic3 := table.GetOrCreate(300)
	ic3.Update(fakeTuple(2), fakeTuple(101), 1)
	ic3.Update(fakeTuple(3), fakeTuple(101), 1)
	ic3.Lookup(fakeTuple(4), 1)

	tally := table.Stats()
	if tally.Monomorphic != 1 || tally.Polymorphic != 1 || tally.Empty != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if tally.Hits != 1 || tally.Misses != 1 {
		t.Errorf("hits=%d misses=%d", tally.Hits, tally.Misses)
	}
	if rate := table.HitRate(); rate != 50 {
		t.Errorf("table hit rate %.1f", rate)
	}
}
